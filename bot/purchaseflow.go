package bot

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/dshills/convograph/bot/tools"
	"github.com/dshills/convograph/graph"
	"github.com/dshills/convograph/graph/wire"
)

var (
	digitsOnly      = regexp.MustCompile(`^\d+$`)
	trackIDPattern  = regexp.MustCompile(`(?i)\btrack\s*id\b\D*(\d+)\b`)
	bareIDPattern   = regexp.MustCompile(`(?i)\bid\b\D*(\d+)\b`)
	firstIntPattern = regexp.MustCompile(`\b(\d+)\b`)
)

// parseTrackID extracts an explicit track id from user text: a bare
// number, "track id 123", or "id 123". Returns 0 when no id is present.
func parseTrackID(text string) int {
	s := strings.TrimSpace(text)
	if s == "" {
		return 0
	}
	if digitsOnly.MatchString(s) {
		id, _ := strconv.Atoi(s)
		return id
	}
	if m := trackIDPattern.FindStringSubmatch(text); m != nil {
		id, _ := strconv.Atoi(m[1])
		return id
	}
	if m := bareIDPattern.FindStringSubmatch(text); m != nil {
		id, _ := strconv.Atoi(m[1])
		return id
	}
	return 0
}

// parseFirstInt returns the first integer token in the text, or 0.
func parseFirstInt(text string) int {
	if m := firstIntPattern.FindStringSubmatch(text); m != nil {
		n, _ := strconv.Atoi(m[1])
		return n
	}
	return 0
}

func alreadyOwnMessage(t *tools.Track) string {
	return fmt.Sprintf("You already own %q by %s. 🎵", t.Name, t.Artist)
}

// newPurchaseGraph builds the track purchase flow. It resolves the target
// track from any entry point: an explicit track id in the message, the
// tracks shown last turn, the lyrics flow's identified track, a title
// search, or by asking. Checkout runs embedded as the payment_flow step.
func newPurchaseGraph(catalog *tools.Catalog, payment *graph.Graph[AppState]) (*graph.Graph[AppState], error) {
	b := newBuilder()

	b.add("init", func(ctx context.Context, state AppState) graph.StepResult[AppState] {
		return graph.StepResult[AppState]{
			Delta: AppState{
				Purchase: &PurchaseFlow{
					Status:        StatusActive,
					Request:       state.LastUserMsg,
					ParsedTrackID: parseTrackID(state.LastUserMsg),
					NumericRef:    parseFirstInt(state.LastUserMsg),
				},
			},
		}
	})

	b.add("resolve", func(ctx context.Context, state AppState) graph.StepResult[AppState] {
		flow := purchaseCopy(state.Purchase)

		if flow.ParsedTrackID != 0 {
			track, err := catalog.TrackByID(ctx, flow.ParsedTrackID)
			if err != nil {
				return graph.StepResult[AppState]{Err: err}
			}
			if track == nil {
				return graph.StepResult[AppState]{
					Delta: AppState{
						AssistantMessages: say(fmt.Sprintf(
							"I couldn’t find a track with Track ID %d. "+
								"Please share a valid Track ID or a song title to search.", flow.ParsedTrackID)),
					},
					Route: graph.Goto("done"),
				}
			}
			return selectTrack(ctx, catalog, state, flow, track)
		}

		// No explicit id; fall back to conversation context.
		lastShown := state.LastTrackIDs
		if len(lastShown) == 0 && state.Lyrics != nil && state.Lyrics.TrackID != 0 {
			lastShown = []int{state.Lyrics.TrackID}
		}

		if len(lastShown) == 1 {
			track, err := catalog.TrackByID(ctx, lastShown[0])
			if err != nil {
				return graph.StepResult[AppState]{Err: err}
			}
			if track != nil {
				return selectTrack(ctx, catalog, state, flow, track)
			}
		}

		if len(lastShown) > 1 {
			if flow.NumericRef != 0 {
				for _, id := range lastShown {
					if id == flow.NumericRef {
						flow.ParsedTrackID = flow.NumericRef
						return graph.StepResult[AppState]{
							Delta: AppState{Purchase: flow},
							Route: graph.Goto("resolve"),
						}
					}
				}
				if flow.NumericRef >= 1 && flow.NumericRef <= len(lastShown) {
					track, err := catalog.TrackByID(ctx, lastShown[flow.NumericRef-1])
					if err != nil {
						return graph.StepResult[AppState]{Err: err}
					}
					if track != nil {
						return selectTrack(ctx, catalog, state, flow, track)
					}
				}
			}
			flow.CandidateTracks = append([]int(nil), lastShown...)
			return graph.StepResult[AppState]{
				Delta: AppState{Purchase: flow},
				Route: graph.Goto("choose_track"),
			}
		}

		return graph.StepResult[AppState]{Route: graph.Goto("ask_which")}
	})

	b.add("ask_which", func(ctx context.Context, state AppState) graph.StepResult[AppState] {
		answer, ok := graph.ResumeValue(ctx)
		if !ok {
			return graph.StepResult[AppState]{
				Route: graph.Ask(wire.Input("Purchase Track",
					"Which track would you like to buy? Share a Track ID (e.g. 2269) or a song title.", "")),
			}
		}
		if answer == "" {
			return graph.StepResult[AppState]{
				Delta: AppState{AssistantMessages: say("No problem — cancelled.")},
				Route: graph.Goto("done"),
			}
		}

		flow := purchaseCopy(state.Purchase)
		flow.Request = answer
		flow.ParsedTrackID = parseTrackID(answer)
		flow.NumericRef = parseFirstInt(answer)
		return graph.StepResult[AppState]{
			Delta: AppState{Purchase: flow},
			Route: graph.Goto("resolve_free_text"),
		}
	})

	b.add("resolve_free_text", func(ctx context.Context, state AppState) graph.StepResult[AppState] {
		flow := purchaseCopy(state.Purchase)

		// Numbers may refer to the list shown last turn.
		parsedID := flow.ParsedTrackID
		if parsedID == 0 && flow.NumericRef != 0 && len(state.LastTrackIDs) > 0 {
			for _, id := range state.LastTrackIDs {
				if id == flow.NumericRef {
					parsedID = flow.NumericRef
				}
			}
			if parsedID == 0 && flow.NumericRef >= 1 && flow.NumericRef <= len(state.LastTrackIDs) {
				track, err := catalog.TrackByID(ctx, state.LastTrackIDs[flow.NumericRef-1])
				if err != nil {
					return graph.StepResult[AppState]{Err: err}
				}
				if track != nil {
					return selectTrack(ctx, catalog, state, flow, track)
				}
			}
		}

		if parsedID != 0 {
			track, err := catalog.TrackByID(ctx, parsedID)
			if err != nil {
				return graph.StepResult[AppState]{Err: err}
			}
			if track == nil {
				return graph.StepResult[AppState]{
					Delta: AppState{
						AssistantMessages: say(fmt.Sprintf(
							"I couldn’t find Track ID %d. Try another ID or a title.", parsedID)),
					},
					Route: graph.Goto("done"),
				}
			}
			return selectTrack(ctx, catalog, state, flow, track)
		}

		results, err := catalog.SearchTracksByTitle(ctx, flow.Request, 5)
		if err != nil {
			return graph.StepResult[AppState]{Err: err}
		}
		switch len(results) {
		case 0:
			return graph.StepResult[AppState]{
				Delta: AppState{
					AssistantMessages: say(fmt.Sprintf(
						"I couldn’t find any tracks matching %q. Try a different title or a Track ID.", flow.Request)),
				},
				Route: graph.Goto("done"),
			}
		case 1:
			return selectTrack(ctx, catalog, state, flow, &results[0])
		default:
			ids := make([]int, len(results))
			for i, t := range results {
				ids[i] = t.ID
			}
			flow.CandidateTracks = ids
			return graph.StepResult[AppState]{
				Delta: AppState{Purchase: flow},
				Route: graph.Goto("choose_track"),
			}
		}
	})

	b.add("choose_track", func(ctx context.Context, state AppState) graph.StepResult[AppState] {
		flow := purchaseCopy(state.Purchase)

		selection, resumed := graph.ResumeValue(ctx)
		if !resumed {
			var choices []string
			for _, id := range flow.CandidateTracks {
				track, err := catalog.TrackByID(ctx, id)
				if err != nil {
					return graph.StepResult[AppState]{Err: err}
				}
				if track == nil {
					continue
				}
				owned, err := catalog.AlreadyPurchased(ctx, state.UserID, track.ID)
				if err != nil {
					return graph.StepResult[AppState]{Err: err}
				}
				label := fmt.Sprintf("%s — %s ($%.2f) [Track ID: %d]", track.Name, track.Artist, track.UnitPrice, track.ID)
				if owned {
					label += " (already owned)"
				}
				choices = append(choices, label)
			}
			if len(choices) == 0 {
				return graph.StepResult[AppState]{
					Delta: AppState{AssistantMessages: say("Sorry — I lost track of the options. Try again.")},
					Route: graph.Goto("done"),
				}
			}

			prompt := &wire.Suspension{
				Type:    wire.SuspendConfirm,
				Title:   "Choose a Track",
				Text:    "Which one would you like to purchase?",
				Choices: choices,
			}
			return graph.StepResult[AppState]{Route: graph.Ask(prompt)}
		}

		if selection == "" {
			return graph.StepResult[AppState]{
				Delta: AppState{AssistantMessages: say("No problem — cancelled.")},
				Route: graph.Goto("done"),
			}
		}

		chosenID := parseTrackID(selection)
		if chosenID == 0 {
			return graph.StepResult[AppState]{
				Delta: AppState{AssistantMessages: say("Sorry — I couldn’t understand that selection.")},
				Route: graph.Goto("done"),
			}
		}

		track, err := catalog.TrackByID(ctx, chosenID)
		if err != nil {
			return graph.StepResult[AppState]{Err: err}
		}
		if track == nil {
			return graph.StepResult[AppState]{
				Delta: AppState{AssistantMessages: say("Sorry — that track is no longer available.")},
				Route: graph.Goto("done"),
			}
		}
		return selectTrack(ctx, catalog, state, flow, track)
	})

	b.add("prepare_payment", func(ctx context.Context, state AppState) graph.StepResult[AppState] {
		flow := purchaseCopy(state.Purchase)
		if flow.SelectedTrackID == 0 {
			return graph.StepResult[AppState]{
				Delta: AppState{AssistantMessages: say("Sorry — I couldn’t determine which track to buy.")},
				Route: graph.Goto("done"),
			}
		}

		track, err := catalog.TrackByID(ctx, flow.SelectedTrackID)
		if err != nil {
			return graph.StepResult[AppState]{Err: err}
		}
		if track == nil {
			return graph.StepResult[AppState]{
				Delta: AppState{AssistantMessages: say("Sorry — that track wasn’t found.")},
				Route: graph.Goto("done"),
			}
		}

		return graph.StepResult[AppState]{
			Delta: AppState{
				Payment: &PaymentFlow{
					Items: []PaymentItem{{
						TrackID:   track.ID,
						Name:      fmt.Sprintf("%s — %s", track.Name, track.Artist),
						UnitPrice: track.UnitPrice,
					}},
				},
			},
		}
	})

	b.addSubgraph("payment_flow", payment)

	b.add("done", func(ctx context.Context, state AppState) graph.StepResult[AppState] {
		flow := purchaseCopy(state.Purchase)
		flow.Status = StatusDone
		return graph.StepResult[AppState]{
			Delta: AppState{Purchase: flow},
			Route: graph.Stop(),
		}
	})

	b.startAt("init")
	b.connect("init", "resolve", nil)
	b.connect("prepare_payment", "payment_flow", nil)
	b.connect("payment_flow", "done", nil)

	return b.build()
}

// selectTrack finalizes track resolution: an already-owned track short
// circuits to done with a notice, otherwise the track is recorded and the
// flow proceeds to checkout.
func selectTrack(ctx context.Context, catalog *tools.Catalog, state AppState, flow *PurchaseFlow, track *tools.Track) graph.StepResult[AppState] {
	owned, err := catalog.AlreadyPurchased(ctx, state.UserID, track.ID)
	if err != nil {
		return graph.StepResult[AppState]{Err: err}
	}

	flow.SelectedTrackID = track.ID
	if owned {
		flow.Status = StatusDone
		return graph.StepResult[AppState]{
			Delta: AppState{
				Purchase:          flow,
				AssistantMessages: say(alreadyOwnMessage(track)),
				LastTrackIDs:      []int{track.ID},
			},
			Route: graph.Goto("done"),
		}
	}

	return graph.StepResult[AppState]{
		Delta: AppState{
			Purchase:     flow,
			LastTrackIDs: []int{track.ID},
		},
		Route: graph.Goto("prepare_payment"),
	}
}
