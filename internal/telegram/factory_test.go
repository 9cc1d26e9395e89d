package telegram

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockedby/relaybot/internal/models"
)

func TestAwaitDial_ReturnsConnection(t *testing.T) {
	h, err := awaitDial(context.Background(), func() (*Handle, error) {
		return &Handle{API: &fakeAPI{}}, nil
	})
	require.NoError(t, err)
	assert.NotNil(t, h)

	boom := errors.New("auth key unregistered")
	_, err = awaitDial(context.Background(), func() (*Handle, error) { return nil, boom })
	assert.ErrorIs(t, err, boom)
}

func TestAwaitDial_CancelStopsLateConnection(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	release := make(chan struct{})
	stopped := make(chan struct{})

	errc := make(chan error, 1)
	go func() {
		_, err := awaitDial(ctx, func() (*Handle, error) {
			<-release
			return &Handle{API: &fakeAPI{}, Stop: func() { close(stopped) }}, nil
		})
		errc <- err
	}()

	cancel()
	select {
	case err := <-errc:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("dial was not abandoned on cancel")
	}

	close(release)
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("late connection was not stopped")
	}
}

func TestSessionDialer_RequiresStoredLogin(t *testing.T) {
	dial := NewSessionDialer(1, "hash", nil)
	_, err := dial(context.Background(), &models.SessionAccount{Name: "empty"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no stored login")
}
