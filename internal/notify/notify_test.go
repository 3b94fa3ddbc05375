package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"villaops/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockTelegramSender struct {
	mock.Mock
}

func (m *mockTelegramSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	args := m.Called(c)
	return args.Get(0).(tgbotapi.Message), args.Error(1)
}

func markdown(chatID int64, text string) interface{} {
	return mock.MatchedBy(func(c tgbotapi.Chattable) bool {
		msg, ok := c.(tgbotapi.MessageConfig)
		return ok && msg.ChatID == chatID && msg.Text == text && msg.ParseMode == models.ParseModeMarkdown
	})
}

func plain(chatID int64) interface{} {
	return mock.MatchedBy(func(c tgbotapi.Chattable) bool {
		msg, ok := c.(tgbotapi.MessageConfig)
		return ok && msg.ChatID == chatID && msg.ParseMode == ""
	})
}

func TestTelegramNotifier(t *testing.T) {
	ctx := context.Background()

	t.Run("Markdown", func(t *testing.T) {
		bot := new(mockTelegramSender)
		bot.On("Send", markdown(123, "*hello*")).Return(tgbotapi.Message{}, nil).Once()

		n := NewTelegramNotifier(bot, nil)
		assert.NoError(t, n.SendMessage(ctx, 123, "*hello*"))
		bot.AssertExpectations(t)
	})

	t.Run("PlainTextFallback", func(t *testing.T) {
		bot := new(mockTelegramSender)
		bot.On("Send", markdown(123, "bad_*markup")).
			Return(tgbotapi.Message{}, errors.New("Bad Request: can't parse entities")).Once()
		bot.On("Send", plain(123)).Return(tgbotapi.Message{}, nil).Once()

		n := NewTelegramNotifier(bot, nil)
		assert.NoError(t, n.SendMessage(ctx, 123, "bad_*markup"))
		bot.AssertExpectations(t)
	})

	t.Run("Error", func(t *testing.T) {
		bot := new(mockTelegramSender)
		bot.On("Send", mock.Anything).Return(tgbotapi.Message{}, errors.New("Forbidden: bot was blocked by the user")).Once()

		n := NewTelegramNotifier(bot, nil)
		err := n.SendMessage(ctx, 42, "hi")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "blocked")
		bot.AssertNumberOfCalls(t, "Send", 1)
	})

	t.Run("CancelledContext", func(t *testing.T) {
		bot := new(mockTelegramSender)
		cctx, cancel := context.WithCancel(ctx)
		cancel()

		n := NewTelegramNotifier(bot, nil)
		assert.ErrorIs(t, n.SendMessage(cctx, 1, "hi"), context.Canceled)
		bot.AssertNotCalled(t, "Send", mock.Anything)
	})
}

func TestNewBot_EmptyToken(t *testing.T) {
	_, err := NewBot("", false)
	assert.Error(t, err)
}

func TestParseClock(t *testing.T) {
	h, m, err := ParseClock("08:30")
	require.NoError(t, err)
	assert.Equal(t, 8, h)
	assert.Equal(t, 30, m)

	for _, bad := range []string{"", "noon", "24:00", "07:60"} {
		_, _, err := ParseClock(bad)
		assert.Error(t, err, bad)
	}
}

func TestUntilNext(t *testing.T) {
	now := time.Date(2026, 7, 1, 7, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Hour, untilNext(now, 8, 0))
	assert.Equal(t, 23*time.Hour, untilNext(now, 6, 0))
	assert.Equal(t, 24*time.Hour, untilNext(now, 7, 0))
}

func TestStartDigest_InvalidTime(t *testing.T) {
	err := StartDigest(context.Background(), "late", func(context.Context, time.Time) (int, error) { return 0, nil }, nil)
	assert.Error(t, err)
}
