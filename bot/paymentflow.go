package bot

import (
	"context"
	"fmt"
	"strings"

	"github.com/dshills/convograph/bot/tools"
	"github.com/dshills/convograph/graph"
	"github.com/dshills/convograph/graph/wire"
)

// newPaymentGraph builds the checkout flow: quote the order, confirm it,
// charge the gateway (idempotently, keyed by the payment intent), record
// the invoice, and render the receipt.
func newPaymentGraph(catalog *tools.Catalog, gateway *tools.PaymentGateway) (*graph.Graph[AppState], error) {
	b := newBuilder()

	b.add("build_quote", func(ctx context.Context, state AppState) graph.StepResult[AppState] {
		flow := paymentCopy(state.Payment)

		if len(flow.Items) == 0 {
			flow.Status = StatusFailed
			flow.Error = "No items to purchase"
			return graph.StepResult[AppState]{
				Delta: AppState{
					Payment:           flow,
					AssistantMessages: say("Sorry, there was an error with your order. No items found."),
				},
				Route: graph.Goto("done"),
			}
		}

		var total float64
		display := make([]string, len(flow.Items))
		for i, item := range flow.Items {
			total += item.UnitPrice
			display[i] = fmt.Sprintf("%s ($%.2f)", item.Name, item.UnitPrice)
		}

		flow.Status = StatusActive
		flow.Total = total
		flow.IntentID = tools.NewIntentID()

		return graph.StepResult[AppState]{
			Delta: AppState{
				Payment: flow,
				AssistantMessages: say(fmt.Sprintf("Order summary: %s\n\nTotal: $%.2f",
					strings.Join(display, ", "), total)),
			},
		}
	})

	b.add("confirm", func(ctx context.Context, state AppState) graph.StepResult[AppState] {
		total := 0.0
		if state.Payment != nil {
			total = state.Payment.Total
		}

		decision, ok := graph.ResumeValue(ctx)
		if !ok {
			return graph.StepResult[AppState]{
				Route: graph.Ask(wire.Confirm("Confirm Purchase",
					fmt.Sprintf("Confirm purchase for $%.2f?", total))),
			}
		}
		if decision == "Yes" {
			return graph.StepResult[AppState]{Route: graph.Goto("execute_charge")}
		}
		return graph.StepResult[AppState]{Route: graph.Goto("cancel")}
	})

	b.add("execute_charge", func(ctx context.Context, state AppState) graph.StepResult[AppState] {
		flow := paymentCopy(state.Payment)

		result, err := gateway.Charge(flow.IntentID, flow.Total)
		if err != nil {
			flow.Status = StatusFailed
			flow.Error = err.Error()
			return graph.StepResult[AppState]{
				Delta: AppState{Payment: flow},
				Route: graph.Goto("failed"),
			}
		}

		if !result.Succeeded {
			flow.Status = StatusFailed
			flow.Error = result.Reason
			return graph.StepResult[AppState]{
				Delta: AppState{Payment: flow},
				Route: graph.Goto("failed"),
			}
		}

		flow.Status = StatusDone
		flow.TransactionID = result.TransactionID
		return graph.StepResult[AppState]{
			Delta: AppState{Payment: flow},
			Route: graph.Goto("commit_invoice"),
		}
	})

	// An invoice write failure is logged into the flow but does not fail
	// the turn: the charge already went through.
	b.add("commit_invoice", func(ctx context.Context, state AppState) graph.StepResult[AppState] {
		flow := paymentCopy(state.Payment)
		if len(flow.Items) == 0 {
			return graph.StepResult[AppState]{}
		}

		item := flow.Items[0]
		invoice, err := catalog.CreateInvoice(ctx, state.UserID, item.TrackID, item.UnitPrice, 1)
		if err != nil {
			return graph.StepResult[AppState]{}
		}

		flow.InvoiceID = invoice.ID
		return graph.StepResult[AppState]{Delta: AppState{Payment: flow}}
	})

	b.add("render_receipt", func(ctx context.Context, state AppState) graph.StepResult[AppState] {
		flow := paymentCopy(state.Payment)

		lines := make([]wire.InvoiceLine, len(flow.Items))
		for i, item := range flow.Items {
			lines[i] = wire.InvoiceLine{Name: item.Name, Qty: 1, UnitPrice: item.UnitPrice}
		}

		return graph.StepResult[AppState]{
			Delta: AppState{
				AssistantMessages: []wire.AssistantPayload{
					wire.Invoice(flow.InvoiceID, flow.Total, lines, flow.TransactionID),
					wire.Text("Purchase complete! Thank you for your order."),
				},
			},
		}
	})

	b.add("cancel", func(ctx context.Context, state AppState) graph.StepResult[AppState] {
		flow := paymentCopy(state.Payment)
		flow.Status = StatusCancelled
		return graph.StepResult[AppState]{
			Delta: AppState{
				Payment:           flow,
				AssistantMessages: say("No problem! Purchase cancelled. Let me know if you change your mind."),
			},
		}
	})

	b.add("failed", func(ctx context.Context, state AppState) graph.StepResult[AppState] {
		errText := "Unknown error"
		if state.Payment != nil && state.Payment.Error != "" {
			errText = state.Payment.Error
		}
		return graph.StepResult[AppState]{
			Delta: AppState{
				AssistantMessages: say(fmt.Sprintf(
					"Sorry, the payment could not be processed: %s. Please try again.", errText)),
			},
		}
	})

	b.add("done", func(ctx context.Context, state AppState) graph.StepResult[AppState] {
		return graph.StepResult[AppState]{Route: graph.Stop()}
	})

	b.startAt("build_quote")
	b.connect("build_quote", "confirm", nil)
	b.connect("commit_invoice", "render_receipt", nil)
	b.connect("render_receipt", "done", nil)
	b.connect("cancel", "done", nil)
	b.connect("failed", "done", nil)

	return b.build()
}
