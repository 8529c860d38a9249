package bot

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/dshills/convograph/bot/tools"
	"github.com/dshills/convograph/graph"
	"github.com/dshills/convograph/graph/wire"
)

var (
	quotedPattern = regexp.MustCompile(`["'](.+?)["']`)

	lyricHintPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(?:song|track|music)\s+(?:that\s+)?(?:goes|has|with)\s+(?:like\s+)?["']?(.+)`),
		regexp.MustCompile(`(?i)lyrics?\s+(?:that\s+)?(?:say|go|are)\s+["']?(.+)`),
		regexp.MustCompile(`(?i)looking\s+for\s+(?:a\s+)?song\s+(?:with\s+)?["']?(.+)`),
	}

	questionPrefixes = []string{"what song", "which song", "find the song", "what's the song"}
)

// extractLyricsQuery pulls the lyrics snippet out of a free-form message:
// quoted text first, then common phrasings, then the message itself with
// leading question words stripped.
func extractLyricsQuery(message string) string {
	if m := quotedPattern.FindStringSubmatch(message); m != nil {
		return m[1]
	}

	for _, p := range lyricHintPatterns {
		if m := p.FindStringSubmatch(message); m != nil {
			return strings.Trim(strings.TrimSpace(m[1]), `"'`)
		}
	}

	cleaned := message
	for _, prefix := range questionPrefixes {
		if strings.HasPrefix(strings.ToLower(cleaned), prefix) {
			cleaned = strings.TrimSpace(cleaned[len(prefix):])
		}
	}
	return cleaned
}

// identifiedMessage is the song identification line shown both as an
// assistant message and as the listen prompt's context.
func identifiedMessage(f *LyricsFlow) string {
	switch {
	case f.Owned:
		return fmt.Sprintf("I think you're thinking of %q by %s! Good news - you already own this track! 🎵",
			f.Title, f.Artist)
	case f.InCatalogue:
		return fmt.Sprintf("I think you're thinking of %q by %s! Great news - it's in our catalogue for $%.2f.",
			f.Title, f.Artist, f.UnitPrice)
	default:
		return fmt.Sprintf("I think you're thinking of %q by %s. Unfortunately, it's not currently in our catalogue.",
			f.Title, f.Artist)
	}
}

// newLyricsGraph builds the song identification flow: extract the lyric
// snippet, find the song, check the catalogue and ownership, offer a
// listen, and hand off to checkout or a catalogue request. The checkout
// flow runs embedded as the payment_flow step.
func newLyricsGraph(catalog *tools.Catalog, lyricSearch *tools.LyricSearch, videoSearch *tools.VideoSearch, payment *graph.Graph[AppState]) (*graph.Graph[AppState], error) {
	b := newBuilder()

	b.add("extract", func(ctx context.Context, state AppState) graph.StepResult[AppState] {
		return graph.StepResult[AppState]{
			Delta: AppState{
				Lyrics: &LyricsFlow{
					Status: StatusActive,
					Query:  extractLyricsQuery(state.LastUserMsg),
				},
			},
		}
	})

	b.add("lyric_search", func(ctx context.Context, state AppState) graph.StepResult[AppState] {
		flow := lyricsCopy(state.Lyrics)

		matches := lyricSearch.Search(flow.Query)
		if len(matches) == 0 {
			flow.Status = StatusDone
			return graph.StepResult[AppState]{
				Delta: AppState{
					Lyrics: flow,
					AssistantMessages: say("I couldn't find a song matching those lyrics. " +
						"Try providing a longer or different snippet?"),
				},
				Route: graph.Goto("done"),
			}
		}

		flow.Title = matches[0].Title
		flow.Artist = matches[0].Artist
		return graph.StepResult[AppState]{Delta: AppState{Lyrics: flow}}
	})

	// The identification message commits here, one step before the listen
	// prompt, so it is already in the response when the suspension fires.
	b.add("catalogue_lookup", func(ctx context.Context, state AppState) graph.StepResult[AppState] {
		flow := lyricsCopy(state.Lyrics)

		track, err := catalog.FindTrackByTitleArtist(ctx, flow.Title, flow.Artist)
		if err != nil {
			return graph.StepResult[AppState]{Err: err}
		}
		if track != nil {
			flow.InCatalogue = true
			flow.TrackID = track.ID
			flow.UnitPrice = track.UnitPrice

			owned, err := catalog.AlreadyPurchased(ctx, state.UserID, track.ID)
			if err != nil {
				return graph.StepResult[AppState]{Err: err}
			}
			flow.Owned = owned
		}

		return graph.StepResult[AppState]{
			Delta: AppState{
				Lyrics:            flow,
				AssistantMessages: say(identifiedMessage(flow)),
			},
		}
	})

	b.add("listen_confirm", func(ctx context.Context, state AppState) graph.StepResult[AppState] {
		decision, ok := graph.ResumeValue(ctx)
		if !ok {
			prompt := wire.Confirm("Song Identified", "Do you want to have a listen?").
				WithContext(identifiedMessage(lyricsCopy(state.Lyrics)))
			return graph.StepResult[AppState]{Route: graph.Ask(prompt)}
		}
		if decision == "Yes" {
			return graph.StepResult[AppState]{Route: graph.Goto("video_search")}
		}
		return graph.StepResult[AppState]{
			Delta: AppState{
				AssistantMessages: say("No problem! Let me know if you'd like help with anything else."),
			},
			Route: graph.Goto("done"),
		}
	})

	b.add("video_search", func(ctx context.Context, state AppState) graph.StepResult[AppState] {
		flow := lyricsCopy(state.Lyrics)

		video := videoSearch.Search(fmt.Sprintf("%s %s official audio", flow.Title, flow.Artist))
		flow.VideoID = video.ID
		flow.VideoURL = video.URL
		return graph.StepResult[AppState]{Delta: AppState{Lyrics: flow}}
	})

	b.add("render_player", func(ctx context.Context, state AppState) graph.StepResult[AppState] {
		flow := lyricsCopy(state.Lyrics)

		delta := AppState{
			AssistantMessages: []wire.AssistantPayload{
				wire.Embed("youtube", flow.VideoID, flow.VideoURL),
			},
		}

		switch {
		case flow.Owned:
			flow.Status = StatusDone
			delta.Lyrics = flow
			delta.AssistantMessages = append(delta.AssistantMessages,
				wire.Text("Enjoy your music! Let me know if you need anything else."))
			return graph.StepResult[AppState]{Delta: delta, Route: graph.Goto("done")}
		case flow.InCatalogue:
			delta.Lyrics = flow
			return graph.StepResult[AppState]{Delta: delta, Route: graph.Goto("buy_confirm")}
		default:
			delta.Lyrics = flow
			return graph.StepResult[AppState]{Delta: delta, Route: graph.Goto("request_confirm")}
		}
	})

	b.add("buy_confirm", func(ctx context.Context, state AppState) graph.StepResult[AppState] {
		flow := lyricsCopy(state.Lyrics)

		decision, ok := graph.ResumeValue(ctx)
		if !ok {
			prompt := wire.Confirm("Purchase Track",
				fmt.Sprintf("Would you like to purchase this track for $%.2f?", flow.UnitPrice)).
				WithContext("🎵 Now playing: " + flow.VideoURL)
			return graph.StepResult[AppState]{Route: graph.Ask(prompt)}
		}
		if decision == "Yes" {
			return graph.StepResult[AppState]{Route: graph.Goto("invoke_payment")}
		}
		return graph.StepResult[AppState]{
			Delta: AppState{
				AssistantMessages: say("No worries! Enjoy the preview. Let me know if you need anything else."),
			},
			Route: graph.Goto("done"),
		}
	})

	b.add("invoke_payment", func(ctx context.Context, state AppState) graph.StepResult[AppState] {
		flow := lyricsCopy(state.Lyrics)

		track, err := catalog.TrackByID(ctx, flow.TrackID)
		if err != nil {
			return graph.StepResult[AppState]{Err: err}
		}
		if track == nil {
			return graph.StepResult[AppState]{
				Delta: AppState{
					AssistantMessages: say("Sorry, there was an error finding the track. Please try again."),
				},
				Route: graph.Goto("done"),
			}
		}

		return graph.StepResult[AppState]{
			Delta: AppState{
				Payment: &PaymentFlow{
					Items: []PaymentItem{{TrackID: track.ID, Name: track.Name, UnitPrice: track.UnitPrice}},
				},
			},
		}
	})

	b.add("request_confirm", func(ctx context.Context, state AppState) graph.StepResult[AppState] {
		flow := lyricsCopy(state.Lyrics)

		decision, ok := graph.ResumeValue(ctx)
		if !ok {
			prompt := wire.Confirm("Request Song",
				"Is this the sort of song you'd like to see added to our catalogue?").
				WithContext("🎵 Now playing: " + flow.VideoURL)
			return graph.StepResult[AppState]{Route: graph.Ask(prompt)}
		}
		if decision == "Yes" {
			return graph.StepResult[AppState]{
				Delta: AppState{
					AssistantMessages: say("Great! I've noted your interest. We'll consider adding this song " +
						"to our catalogue. Is there anything else I can help with?"),
				},
				Route: graph.Goto("done"),
			}
		}
		return graph.StepResult[AppState]{
			Delta: AppState{
				AssistantMessages: say("No worries! Enjoy the preview. Let me know if you need anything else."),
			},
			Route: graph.Goto("done"),
		}
	})

	b.addSubgraph("payment_flow", payment)

	b.add("done", func(ctx context.Context, state AppState) graph.StepResult[AppState] {
		flow := lyricsCopy(state.Lyrics)
		flow.Status = StatusDone
		return graph.StepResult[AppState]{
			Delta: AppState{Lyrics: flow},
			Route: graph.Stop(),
		}
	})

	b.startAt("extract")
	b.connect("extract", "lyric_search", nil)
	b.connect("lyric_search", "catalogue_lookup", nil)
	b.connect("catalogue_lookup", "listen_confirm", nil)
	b.connect("video_search", "render_player", nil)
	b.connect("invoke_payment", "payment_flow", nil)
	b.connect("payment_flow", "done", nil)

	return b.build()
}
