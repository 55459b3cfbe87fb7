package telephony

import "context"

// CarrierGateway is the provider-agnostic carrier boundary the orchestrator
// depends on.
//
// Rules:
// - No provider SDK calls outside telephony adapters.
// - The gateway carries no business logic; it places calls, ends calls and
//   dispatches messages. Voice-document rendering is the package-level pure
//   function RenderTurnDocument.
type CarrierGateway interface {
	// PlaceCall starts an outbound call and returns the carrier-assigned
	// call id. Failure here is terminal: no session exists yet and the
	// caller is told synchronously.
	PlaceCall(ctx context.Context, req PlaceCallRequest) (string, error)

	// EndCall asks the carrier to hang up a live call. Ending a call the
	// carrier already closed is not an error.
	EndCall(ctx context.Context, carrierCallID string) error

	// SendNotification dispatches a message on the given channel
	// (currently "whatsapp"). Best-effort from the orchestrator's view.
	SendNotification(ctx context.Context, channel NotificationChannel, destination, body string) error
}

type NotificationChannel string

const ChannelWhatsApp NotificationChannel = "whatsapp"

// PlaceCallRequest describes one outbound call placement.
type PlaceCallRequest struct {
	// To is the destination in E.164.
	To string
	// AnswerURL is the webhook the carrier invokes when the call connects.
	AnswerURL string
	// StatusURL receives asynchronous lifecycle status callbacks.
	StatusURL string
}
