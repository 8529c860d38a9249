package bot

import (
	"context"
	"fmt"
	"regexp"

	"github.com/dshills/convograph/bot/tools"
	"github.com/dshills/convograph/graph"
	"github.com/dshills/convograph/graph/wire"
)

const emailCodeAttempts = 3

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// newEmailGraph builds the email update flow: fetch the account, confirm
// sending a verification code, verify it with a bounded number of
// attempts, collect the new address, and write it to the catalogue.
func newEmailGraph(catalog *tools.Catalog, verifier *tools.Verifier) (*graph.Graph[AppState], error) {
	b := newBuilder()

	b.add("init", func(ctx context.Context, state AppState) graph.StepResult[AppState] {
		if state.UserID == 0 {
			return graph.StepResult[AppState]{
				Delta: AppState{
					Email:             &EmailFlow{Status: StatusFailed, Error: "no user ID provided"},
					AssistantMessages: say("Sorry, I couldn't identify your account. Please try again."),
				},
				Route: graph.Goto("done"),
			}
		}

		contact, err := catalog.CustomerContact(ctx, state.UserID)
		if err != nil {
			return graph.StepResult[AppState]{
				Delta: AppState{
					Email:             &EmailFlow{Status: StatusFailed, Error: err.Error()},
					AssistantMessages: say("Sorry, I couldn't find your account information."),
				},
				Route: graph.Goto("done"),
			}
		}

		phoneDisplay := "****"
		if len(contact.Phone) >= 4 {
			phoneDisplay = "***" + contact.Phone[len(contact.Phone)-4:]
		}

		return graph.StepResult[AppState]{
			Delta: AppState{
				Email: &EmailFlow{
					Status:       StatusActive,
					CurrentEmail: contact.Email,
					Phone:        contact.Phone,
					AttemptsLeft: emailCodeAttempts,
				},
				AssistantMessages: say(fmt.Sprintf(
					"I can update your email address. For security, I'll need to verify "+
						"using the phone number on file ending in %s. "+
						"Would you like me to send a verification code?", phoneDisplay)),
			},
		}
	})

	b.add("confirm_send", func(ctx context.Context, state AppState) graph.StepResult[AppState] {
		decision, ok := graph.ResumeValue(ctx)
		if !ok {
			return graph.StepResult[AppState]{
				Route: graph.Ask(wire.Confirm("Send Verification Code",
					"Send verification code to the phone number on file?")),
			}
		}
		if decision == "Yes" {
			return graph.StepResult[AppState]{Route: graph.Goto("send_code")}
		}
		return graph.StepResult[AppState]{Route: graph.Goto("cancel")}
	})

	b.add("send_code", func(ctx context.Context, state AppState) graph.StepResult[AppState] {
		flow := emailCopy(state.Email)
		verificationID, err := verifier.SendCode(flow.Phone)
		if err != nil {
			flow.Status = StatusFailed
			flow.Error = err.Error()
			return graph.StepResult[AppState]{
				Delta: AppState{Email: flow},
				Route: graph.Goto("failed"),
			}
		}

		flow.VerificationID = verificationID
		return graph.StepResult[AppState]{
			Delta: AppState{
				Email:             flow,
				AssistantMessages: say("I've sent a verification code to your phone. Please enter the 6-digit code."),
			},
		}
	})

	// enter_code both raises the input suspension and, on resume, checks
	// the submitted code. Wrong answers decrement the attempt budget and
	// loop back here, so the prompt re-raises with the error as context.
	b.add("enter_code", func(ctx context.Context, state AppState) graph.StepResult[AppState] {
		flow := emailCopy(state.Email)

		code, ok := graph.ResumeValue(ctx)
		if !ok {
			prompt := wire.Input("Enter Verification Code",
				"Please enter the 6-digit verification code sent to your phone.", "123456")
			if flow.AttemptsLeft < emailCodeAttempts {
				prompt = prompt.WithContext(fmt.Sprintf("Incorrect code. %d attempt(s) left.", flow.AttemptsLeft))
			}
			return graph.StepResult[AppState]{Route: graph.Ask(prompt)}
		}

		if verifier.CheckCode(flow.VerificationID, code) {
			return graph.StepResult[AppState]{
				Delta: AppState{
					Email:             flow,
					Verified:          true,
					AssistantMessages: say("Code verified! What's your new email address?"),
				},
				Route: graph.Goto("new_email"),
			}
		}

		flow.AttemptsLeft--
		if flow.AttemptsLeft > 0 {
			return graph.StepResult[AppState]{
				Delta: AppState{
					Email:             flow,
					AssistantMessages: say(fmt.Sprintf("Incorrect code. %d attempt(s) left.", flow.AttemptsLeft)),
				},
				Route: graph.Goto("enter_code"),
			}
		}

		flow.AttemptsLeft = 0
		flow.Error = "Too many failed attempts"
		return graph.StepResult[AppState]{
			Delta: AppState{Email: flow},
			Route: graph.Goto("failed"),
		}
	})

	b.add("new_email", func(ctx context.Context, state AppState) graph.StepResult[AppState] {
		newEmail, ok := graph.ResumeValue(ctx)
		if !ok {
			return graph.StepResult[AppState]{
				Route: graph.Ask(wire.Input("New Email Address",
					"Please enter your new email address.", "newemail@example.com")),
			}
		}

		flow := emailCopy(state.Email)
		flow.ProposedEmail = newEmail
		return graph.StepResult[AppState]{
			Delta: AppState{Email: flow},
			Route: graph.Goto("update_db"),
		}
	})

	b.add("update_db", func(ctx context.Context, state AppState) graph.StepResult[AppState] {
		flow := emailCopy(state.Email)

		if !emailPattern.MatchString(flow.ProposedEmail) {
			return graph.StepResult[AppState]{
				Delta: AppState{
					AssistantMessages: say(fmt.Sprintf(
						"'%s' doesn't look like a valid email address. Please try again.", flow.ProposedEmail)),
				},
				Route: graph.Goto("new_email"),
			}
		}

		if err := catalog.UpdateCustomerEmail(ctx, state.UserID, flow.ProposedEmail); err != nil {
			flow.Status = StatusFailed
			flow.Error = err.Error()
			return graph.StepResult[AppState]{
				Delta: AppState{
					Email:             flow,
					AssistantMessages: say(fmt.Sprintf("Sorry, there was an error updating your email: %s", err)),
				},
				Route: graph.Goto("done"),
			}
		}

		flow.Status = StatusDone
		return graph.StepResult[AppState]{
			Delta: AppState{
				Email:             flow,
				AssistantMessages: say(fmt.Sprintf("Done! Your email has been updated to %s.", flow.ProposedEmail)),
			},
			Route: graph.Goto("done"),
		}
	})

	b.add("cancel", func(ctx context.Context, state AppState) graph.StepResult[AppState] {
		flow := emailCopy(state.Email)
		flow.Status = StatusCancelled
		return graph.StepResult[AppState]{
			Delta: AppState{
				Email:             flow,
				AssistantMessages: say("No problem! Email update cancelled. What else can I help you with?"),
			},
		}
	})

	b.add("failed", func(ctx context.Context, state AppState) graph.StepResult[AppState] {
		flow := emailCopy(state.Email)
		errText := flow.Error
		if errText == "" {
			errText = "verification failed"
		}
		flow.Status = StatusFailed
		return graph.StepResult[AppState]{
			Delta: AppState{
				Email: flow,
				AssistantMessages: say(fmt.Sprintf(
					"Sorry, the email update could not be completed: %s. "+
						"Please try again later or contact support.", errText)),
			},
		}
	})

	b.add("done", func(ctx context.Context, state AppState) graph.StepResult[AppState] {
		return graph.StepResult[AppState]{Route: graph.Stop()}
	})

	b.startAt("init")
	b.connect("init", "confirm_send", nil)
	b.connect("send_code", "enter_code", nil)
	b.connect("cancel", "done", nil)
	b.connect("failed", "done", nil)

	return b.build()
}
