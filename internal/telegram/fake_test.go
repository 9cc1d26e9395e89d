package telegram

import (
	"context"
	"sync"

	"github.com/gotd/td/tg"
)

// fakeAPI records requests and answers from func fields.
type fakeAPI struct {
	mu sync.Mutex

	resolve  func(username string) (*tg.ContactsResolvedPeer, error)
	history  func(req *tg.MessagesGetHistoryRequest) (tg.MessagesMessagesClass, error)
	forward  func(req *tg.MessagesForwardMessagesRequest) error
	sendErr  error
	mediaErr error

	forwarded []*tg.MessagesForwardMessagesRequest
	sent      []*tg.MessagesSendMessageRequest
	single    []*tg.MessagesSendMediaRequest
	albums    []*tg.MessagesSendMultiMediaRequest
}

func (f *fakeAPI) ContactsResolveUsername(_ context.Context, req *tg.ContactsResolveUsernameRequest) (*tg.ContactsResolvedPeer, error) {
	if f.resolve == nil {
		return &tg.ContactsResolvedPeer{}, nil
	}
	return f.resolve(req.Username)
}

func (f *fakeAPI) MessagesGetHistory(_ context.Context, req *tg.MessagesGetHistoryRequest) (tg.MessagesMessagesClass, error) {
	if f.history == nil {
		return &tg.MessagesChannelMessages{}, nil
	}
	return f.history(req)
}

func (f *fakeAPI) MessagesForwardMessages(_ context.Context, req *tg.MessagesForwardMessagesRequest) (tg.UpdatesClass, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.forward != nil {
		if err := f.forward(req); err != nil {
			return nil, err
		}
	}
	f.forwarded = append(f.forwarded, req)
	return &tg.Updates{}, nil
}

func (f *fakeAPI) MessagesSendMessage(_ context.Context, req *tg.MessagesSendMessageRequest) (tg.UpdatesClass, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	f.sent = append(f.sent, req)
	return &tg.Updates{}, nil
}

func (f *fakeAPI) MessagesSendMedia(_ context.Context, req *tg.MessagesSendMediaRequest) (tg.UpdatesClass, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.mediaErr != nil {
		return nil, f.mediaErr
	}
	f.single = append(f.single, req)
	return &tg.Updates{}, nil
}

func (f *fakeAPI) MessagesSendMultiMedia(_ context.Context, req *tg.MessagesSendMultiMediaRequest) (tg.UpdatesClass, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.mediaErr != nil {
		return nil, f.mediaErr
	}
	f.albums = append(f.albums, req)
	return &tg.Updates{}, nil
}

func newTestClient(api RawAPI) *Client {
	return NewClient(1, api, &tg.User{ID: 500}, nil, NewRateLimiter(1000, 100))
}
