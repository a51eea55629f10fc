package sender

import (
	"context"
	"errors"
	"fmt"

	expo "github.com/oliveroneill/exponent-server-sdk-golang/sdk"
)

// ExpoSender pushes notifications to the owner's devices through the Expo
// push service.
type ExpoSender struct {
	tokens  []expo.ExponentPushToken
	publish func(msg *expo.PushMessage) (expo.PushResponse, error)
}

func NewExpoSender(tokens []string) (*ExpoSender, error) {
	if len(tokens) == 0 {
		return nil, errors.New("expo: at least one push token is required")
	}
	valid := make([]expo.ExponentPushToken, 0, len(tokens))
	for _, t := range tokens {
		pushToken, err := expo.NewExponentPushToken(t)
		if err != nil {
			return nil, fmt.Errorf("expo: invalid push token %q: %w", t, err)
		}
		valid = append(valid, pushToken)
	}

	client := expo.NewPushClient(nil)
	return &ExpoSender{
		tokens:  valid,
		publish: client.Publish,
	}, nil
}

func (s *ExpoSender) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	resp, err := s.publish(&expo.PushMessage{
		To:       s.tokens,
		Title:    msg.Title,
		Body:     msg.Body,
		Data:     pushData(msg),
		Sound:    "default",
		Priority: expo.DefaultPriority,
	})
	if err != nil {
		return fmt.Errorf("expo: publish: %w", err)
	}
	if err := resp.ValidateResponse(); err != nil {
		return fmt.Errorf("expo: %w", err)
	}
	return nil
}

func pushData(msg Message) map[string]string {
	if msg.ID == "" {
		return msg.Data
	}
	data := make(map[string]string, len(msg.Data)+1)
	for k, v := range msg.Data {
		data[k] = v
	}
	data["delivery_id"] = msg.ID
	return data
}

func (s *ExpoSender) ProviderID() string {
	return "expo"
}
