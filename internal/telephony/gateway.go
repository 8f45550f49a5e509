package telephony

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	twilio "github.com/twilio/twilio-go"
	twilioopenapi "github.com/twilio/twilio-go/rest/api/v2010"
)

// Gateway places an outbound call and returns the provider's call-session
// id. The call queue depends on this through its own Dialer interface.
type Gateway interface {
	PlaceCall(ctx context.Context, to, from, callbackURL string) (string, error)
}

// TwilioGateway is the production Gateway over the Twilio REST API.
type TwilioGateway struct {
	client            *twilio.RestClient
	statusCallbackURL string
}

var _ Gateway = (*TwilioGateway)(nil)

// NewTwilioGateway builds the REST client. statusCallbackURL may be empty,
// in which case call-end resolution falls entirely to the stale sweep.
func NewTwilioGateway(accountSID, authToken, statusCallbackURL string) *TwilioGateway {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return &TwilioGateway{client: client, statusCallbackURL: statusCallbackURL}
}

// PlaceCall dials the recipient. callbackURL is fetched by Twilio when the
// call is answered and must point at the initial turn (ordinal 0).
func (g *TwilioGateway) PlaceCall(ctx context.Context, to, from, callbackURL string) (string, error) {
	params := &twilioopenapi.CreateCallParams{}
	params.SetTo(to)
	params.SetFrom(from)
	params.SetUrl(callbackURL)
	params.SetMethod(http.MethodPost)
	if g.statusCallbackURL != "" {
		params.SetStatusCallback(g.statusCallbackURL)
		params.SetStatusCallbackMethod(http.MethodPost)
		params.SetStatusCallbackEvent([]string{"completed", "busy", "no-answer", "failed", "canceled"})
	}

	resp, err := g.client.Api.CreateCall(params)
	if err != nil {
		return "", fmt.Errorf("telephony: create call: %w", err)
	}
	if resp.Sid == nil || *resp.Sid == "" {
		return "", errors.New("telephony: gateway returned no call sid")
	}
	return *resp.Sid, nil
}
