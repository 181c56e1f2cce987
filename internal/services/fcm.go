package services

import (
	"context"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
)

// PushSender delivers a push message to a device token.
type PushSender interface {
	SendPush(ctx context.Context, deviceToken, title, body, link string) error
}

// FCMSender sends pushes through Firebase Cloud Messaging.
type FCMSender struct {
	client *messaging.Client
}

// InitFCM initializes the Firebase Admin SDK and returns a messaging client
func InitFCM(credPath string) (*FCMSender, error) {
	opt := option.WithCredentialsFile(credPath)
	app, err := firebase.NewApp(context.Background(), nil, opt)
	if err != nil {
		return nil, err
	}
	client, err := app.Messaging(context.Background())
	if err != nil {
		return nil, err
	}
	return &FCMSender{client: client}, nil
}

func (s *FCMSender) SendPush(ctx context.Context, deviceToken, title, body, link string) error {
	msg := &messaging.Message{
		Token: deviceToken,
		Notification: &messaging.Notification{
			Title: title,
			Body:  body,
		},
		Data: map[string]string{
			"link": link,
		},
	}
	_, err := s.client.Send(ctx, msg)
	return err
}
