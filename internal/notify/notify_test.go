package notify

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testInvite = Invite{
	To:         "bob@example.com",
	FamilyName: "Tom & Jerry",
	Code:       "ABC123",
	InvitedBy:  "Ada",
	JoinURL:    "http://localhost:8080/join?code=ABC123",
}

func TestRender(t *testing.T) {
	msg, err := render(testInvite)
	require.NoError(t, err)

	assert.Equal(t, "Ada invited you to join Tom & Jerry on Chore Tracker", msg.Subject)
	assert.Contains(t, msg.Text, "Your family code is: ABC123")
	assert.Contains(t, msg.HTML, "Tom &amp; Jerry", "html body escapes user input")
	assert.Contains(t, msg.HTML, "ABC123")
}

func TestLogMailer(t *testing.T) {
	var buf bytes.Buffer
	m := NewLogMailer(slog.New(slog.NewTextHandler(&buf, nil)))

	require.NoError(t, m.SendInvite(context.Background(), testInvite))
	assert.Contains(t, buf.String(), "to=bob@example.com")
	assert.Contains(t, buf.String(), "code=ABC123")
}

type fakeSES struct {
	got *sesv2.SendEmailInput
	err error
}

func (f *fakeSES) SendEmail(_ context.Context, in *sesv2.SendEmailInput, _ ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	f.got = in
	if f.err != nil {
		return nil, f.err
	}
	return &sesv2.SendEmailOutput{MessageId: aws.String("msg-1")}, nil
}

func TestSESMailer_SendInvite(t *testing.T) {
	fake := &fakeSES{}
	m := newSESMailer(fake, "noreply@example.com", "Chore Tracker", slog.New(slog.DiscardHandler))

	require.NoError(t, m.SendInvite(context.Background(), testInvite))
	require.NotNil(t, fake.got)
	assert.Equal(t, "Chore Tracker <noreply@example.com>", aws.ToString(fake.got.FromEmailAddress))
	assert.Equal(t, []string{"bob@example.com"}, fake.got.Destination.ToAddresses)
	assert.Contains(t, aws.ToString(fake.got.Content.Simple.Body.Text.Data), "ABC123")
}

func TestSESMailer_SendError(t *testing.T) {
	fake := &fakeSES{err: errors.New("throttled")}
	m := newSESMailer(fake, "noreply@example.com", "", slog.New(slog.DiscardHandler))

	err := m.SendInvite(context.Background(), testInvite)
	assert.ErrorContains(t, err, "throttled")
	assert.Equal(t, "noreply@example.com", aws.ToString(fake.got.FromEmailAddress))
}

func TestNewSESMailer_RequiresSender(t *testing.T) {
	_, err := NewSESMailer(context.Background(), "us-east-1", "", "", slog.New(slog.DiscardHandler))
	assert.Error(t, err)
}
