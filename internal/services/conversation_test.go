package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"messenger-sync/internal/codec"
	"messenger-sync/internal/models"
)

func TestCreateConversation(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	seedUsers(t, store, ann, bob)
	svc := NewConversationService(store, nil)

	first := textMessage("m1", "hello", ann, 0)
	id, err := svc.CreateConversation(ctx, sessionFor(ann), bobID, "Bob Stone", first)
	require.NoError(t, err)
	assert.Equal(t, "conversation_m1", id)

	mine, err := svc.GetAllConversations(ctx, annID)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, models.Conversation{
		ID:             id,
		OtherUserEmail: bobID,
		Name:           "Bob Stone",
		LatestMessage:  models.LatestMessage{Date: codec.FormatDate(first.SentAt), Text: "hello"},
	}, mine[0])

	theirs, err := svc.GetAllConversations(ctx, bobID)
	require.NoError(t, err)
	require.Len(t, theirs, 1)
	assert.Equal(t, id, theirs[0].ID)
	assert.Equal(t, annID, theirs[0].OtherUserEmail)
	assert.Equal(t, "Ann Lee", theirs[0].Name)

	messages, err := svc.GetAllMessages(ctx, id)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, "hello", messages[0].Text)
	assert.Equal(t, annID, messages[0].SenderEmail)

	// the sender's profile survives the root document rewrite
	raw, err := store.Get(ctx, annID+"/first_name")
	require.NoError(t, err)
	assert.JSONEq(t, `"Ann"`, string(raw))
}

func TestCreateConversation_UserNotFound(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	svc := NewConversationService(store, nil)

	_, err := svc.CreateConversation(ctx, sessionFor(ann), bobID, "Bob Stone", textMessage("m1", "hi", ann, 0))
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrUserNotFound)

	_, err = store.Get(ctx, "conversation_m1/messages")
	assert.ErrorIs(t, err, models.ErrNotFound)
	_, err = store.Get(ctx, bobID+"/conversations")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestCreateConversation_RecipientFailureIsSwallowed(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	seedUsers(t, store, ann)
	store.failSet[bobID+"/conversations"] = errors.New("permission denied")
	svc := NewConversationService(store, nil)

	id, err := svc.CreateConversation(ctx, sessionFor(ann), bobID, "Bob Stone", textMessage("m1", "hi", ann, 0))
	require.NoError(t, err)

	mine, err := svc.GetAllConversations(ctx, annID)
	require.NoError(t, err)
	assert.Len(t, mine, 1)

	_, err = svc.GetAllConversations(ctx, bobID)
	assert.ErrorIs(t, err, models.ErrFetchFailed)

	messages, err := svc.GetAllMessages(ctx, id)
	require.NoError(t, err)
	assert.Len(t, messages, 1)
}

func TestCreateConversation_WriteFailures(t *testing.T) {
	tests := []struct {
		name     string
		failPath string
	}{
		{name: "sender root", failPath: annID},
		{name: "message list", failPath: "conversation_m1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			store := newStore(t)
			seedUsers(t, store, ann, bob)
			store.failSet[tt.failPath] = errors.New("unavailable")
			svc := NewConversationService(store, nil)

			_, err := svc.CreateConversation(ctx, sessionFor(ann), bobID, "Bob Stone", textMessage("m1", "hi", ann, 0))
			require.Error(t, err)
			assert.ErrorIs(t, err, models.ErrWriteFailed)

			// steps before the failure stay written
			theirs, err := svc.GetAllConversations(ctx, bobID)
			require.NoError(t, err)
			assert.Len(t, theirs, 1)

			_, err = store.Get(ctx, "conversation_m1/messages")
			assert.ErrorIs(t, err, models.ErrNotFound)
		})
	}
}

func TestCreateThenSend(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	seedUsers(t, store, ann, bob)
	svc := NewConversationService(store, nil)

	id, err := svc.CreateConversation(ctx, sessionFor(ann), bobID, "Bob Stone", textMessage("m1", "hello", ann, 0))
	require.NoError(t, err)

	second := textMessage("m2", "how are you", ann, 1)
	require.NoError(t, svc.SendMessage(ctx, sessionFor(ann), id, bobID, "Bob Stone", second))

	messages, err := svc.GetAllMessages(ctx, id)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "m1", messages[0].ID)
	assert.Equal(t, "m2", messages[1].ID)

	for _, who := range []string{annID, bobID} {
		list, err := svc.GetAllConversations(ctx, who)
		require.NoError(t, err)
		require.Len(t, list, 1, who)
		assert.Equal(t, "how are you", list[0].LatestMessage.Text, who)
		assert.Equal(t, codec.FormatDate(second.SentAt), list[0].LatestMessage.Date, who)
	}
}

func TestSendMessage_NoMessages(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	seedUsers(t, store, ann, bob)
	svc := NewConversationService(store, nil)

	err := svc.SendMessage(ctx, sessionFor(ann), "conversation_missing", bobID, "Bob Stone", textMessage("m2", "hi", ann, 1))
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrNoMessages)

	_, err = store.Get(ctx, annID+"/conversations")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestSendMessage_UpdatesSummaryInPlace(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	seedUsers(t, store, ann, bob)
	svc := NewConversationService(store, nil)

	first, err := svc.CreateConversation(ctx, sessionFor(ann), bobID, "Bob Stone", textMessage("m1", "one", ann, 0))
	require.NoError(t, err)
	_, err = svc.CreateConversation(ctx, sessionFor(ann), "cid-x-io", "Cid", textMessage("m2", "two", ann, 1))
	require.NoError(t, err)

	require.NoError(t, svc.SendMessage(ctx, sessionFor(ann), first, bobID, "Robert", textMessage("m3", "three", ann, 2)))

	list, err := svc.GetAllConversations(ctx, annID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, first, list[0].ID)
	assert.Equal(t, "Bob Stone", list[0].Name)
	assert.Equal(t, "three", list[0].LatestMessage.Text)
	assert.Equal(t, "two", list[1].LatestMessage.Text)
}

func TestSendMessage_AppendsMissingSummary(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	seedUsers(t, store, ann, bob)
	svc := NewConversationService(store, nil)

	id, err := svc.CreateConversation(ctx, sessionFor(ann), bobID, "Bob Stone", textMessage("m1", "hi", ann, 0))
	require.NoError(t, err)
	require.NoError(t, svc.DeleteConversation(ctx, sessionFor(bob), id))

	require.NoError(t, svc.SendMessage(ctx, sessionFor(ann), id, bobID, "Bob Stone", textMessage("m2", "still there?", ann, 1)))

	theirs, err := svc.GetAllConversations(ctx, bobID)
	require.NoError(t, err)
	require.Len(t, theirs, 1)
	assert.Equal(t, models.Conversation{
		ID:             id,
		OtherUserEmail: annID,
		Name:           "Ann Lee",
		LatestMessage:  models.LatestMessage{Date: codec.FormatDate(baseTime.Add(time.Minute)), Text: "still there?"},
	}, theirs[0])
}

func TestSendMessage_SecondSummaryFailureLeavesDivergence(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	seedUsers(t, store, ann, bob)
	svc := NewConversationService(store, nil)

	id, err := svc.CreateConversation(ctx, sessionFor(ann), bobID, "Bob Stone", textMessage("m1", "hi", ann, 0))
	require.NoError(t, err)

	store.failSet[bobID+"/conversations"] = errors.New("timeout")
	err = svc.SendMessage(ctx, sessionFor(ann), id, bobID, "Bob Stone", textMessage("m2", "again", ann, 1))
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrWriteFailed)

	messages, err := svc.GetAllMessages(ctx, id)
	require.NoError(t, err)
	assert.Len(t, messages, 2)

	mine, err := svc.GetAllConversations(ctx, annID)
	require.NoError(t, err)
	assert.Equal(t, "again", mine[0].LatestMessage.Text)

	theirs, err := svc.GetAllConversations(ctx, bobID)
	require.NoError(t, err)
	assert.Equal(t, "hi", theirs[0].LatestMessage.Text)
}

func TestSendMessage_SequentialSendersKeepEveryMessage(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	seedUsers(t, store, ann, bob)
	svc := NewConversationService(store, nil)

	id, err := svc.CreateConversation(ctx, sessionFor(ann), bobID, "Bob Stone", textMessage("m1", "hi", ann, 0))
	require.NoError(t, err)

	require.NoError(t, svc.SendMessage(ctx, sessionFor(ann), id, bobID, "Bob Stone", textMessage("m2", "from ann", ann, 1)))
	require.NoError(t, svc.SendMessage(ctx, sessionFor(bob), id, annID, "Ann Lee", textMessage("m3", "from bob", bob, 2)))

	messages, err := svc.GetAllMessages(ctx, id)
	require.NoError(t, err)
	require.Len(t, messages, 3)
	assert.Equal(t, []string{"m1", "m2", "m3"}, []string{messages[0].ID, messages[1].ID, messages[2].ID})
	assert.Equal(t, bobID, messages[2].SenderEmail)

	for _, who := range []string{annID, bobID} {
		list, err := svc.GetAllConversations(ctx, who)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, "from bob", list[0].LatestMessage.Text)
	}
}

func TestDeleteConversation(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	seedUsers(t, store, ann, bob)
	svc := NewConversationService(store, nil)

	id, err := svc.CreateConversation(ctx, sessionFor(ann), bobID, "Bob Stone", textMessage("m1", "hi", ann, 0))
	require.NoError(t, err)

	require.NoError(t, svc.DeleteConversation(ctx, sessionFor(ann), id))

	mine, err := svc.GetAllConversations(ctx, annID)
	require.NoError(t, err)
	assert.Empty(t, mine)

	theirs, err := svc.GetAllConversations(ctx, bobID)
	require.NoError(t, err)
	assert.Len(t, theirs, 1)

	messages, err := svc.GetAllMessages(ctx, id)
	require.NoError(t, err)
	assert.Len(t, messages, 1)
}

func TestDeleteConversation_UnknownIDLeavesListUnchanged(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	seedUsers(t, store, ann, bob)
	svc := NewConversationService(store, nil)

	_, err := svc.CreateConversation(ctx, sessionFor(ann), bobID, "Bob Stone", textMessage("m1", "hi", ann, 0))
	require.NoError(t, err)

	before, err := store.Get(ctx, annID+"/conversations")
	require.NoError(t, err)

	require.NoError(t, svc.DeleteConversation(ctx, sessionFor(ann), "conversation_nope"))

	after, err := store.Get(ctx, annID+"/conversations")
	require.NoError(t, err)
	assert.Equal(t, string(before), string(after))
}

func TestDeleteConversation_NoList(t *testing.T) {
	store := newStore(t)
	svc := NewConversationService(store, nil)

	err := svc.DeleteConversation(context.Background(), sessionFor(ann), "conversation_m1")
	assert.ErrorIs(t, err, models.ErrFetchFailed)
}

func TestConversationExists_LooksInTargetsList(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		annList []models.Conversation
		bobList []models.Conversation
		wantID  string
		wantErr error
	}{
		{
			name:    "found in target's list",
			bobList: []models.Conversation{{ID: "conversation_b", OtherUserEmail: annID}},
			wantID:  "conversation_b",
		},
		{
			name:    "only in own list",
			annList: []models.Conversation{{ID: "conversation_a", OtherUserEmail: bobID}},
			bobList: []models.Conversation{{ID: "conversation_c", OtherUserEmail: "cid-x-io"}},
			wantErr: models.ErrNotFound,
		},
		{
			name:    "target has no list",
			annList: []models.Conversation{{ID: "conversation_a", OtherUserEmail: bobID}},
			wantErr: models.ErrFetchFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newStore(t)
			if tt.annList != nil {
				require.NoError(t, store.Set(ctx, annID+"/conversations", tt.annList))
			}
			if tt.bobList != nil {
				require.NoError(t, store.Set(ctx, bobID+"/conversations", tt.bobList))
			}
			svc := NewConversationService(store, nil)

			id, err := svc.ConversationExists(ctx, sessionFor(ann), bobID)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Empty(t, id)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, id)
		})
	}
}

func TestGetAllMessages_SkipsUndecodable(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	records := []models.MessageRecord{
		codec.Encode(textMessage("m1", "ok", ann, 0)),
		{ID: "m2", Type: "location", Content: "north", Date: codec.FormatDate(baseTime), SenderEmail: annID, Name: "Ann Lee"},
		{ID: "m3", Type: "audio", Content: "", Date: codec.FormatDate(baseTime), SenderEmail: annID, Name: "Ann Lee"},
	}
	require.NoError(t, store.Set(ctx, "conversation_m1/messages", records))

	messages, err := NewConversationService(store, nil).GetAllMessages(ctx, "conversation_m1")
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, "m1", messages[0].ID)
}

func TestWatchConversations(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	seedUsers(t, store, ann, bob)
	svc := NewConversationService(store, nil)

	type delivery struct {
		list []models.Conversation
		err  error
	}
	deliveries := make(chan delivery, 8)
	w, err := svc.WatchConversations(ctx, bobID, func(list []models.Conversation, err error) {
		deliveries <- delivery{list: list, err: err}
	})
	require.NoError(t, err)

	initial := <-deliveries
	assert.ErrorIs(t, initial.err, models.ErrFetchFailed)

	_, err = svc.CreateConversation(ctx, sessionFor(ann), bobID, "Bob Stone", textMessage("m1", "hi", ann, 0))
	require.NoError(t, err)

	select {
	case d := <-deliveries:
		require.NoError(t, d.err)
		require.Len(t, d.list, 1)
		assert.Equal(t, annID, d.list[0].OtherUserEmail)
	case <-time.After(time.Second):
		t.Fatal("no delivery after create")
	}

	w.Cancel()
	require.NoError(t, svc.SendMessage(ctx, sessionFor(ann), "conversation_m1", bobID, "Bob Stone", textMessage("m2", "x", ann, 1)))

	select {
	case d := <-deliveries:
		t.Fatalf("delivery after cancel: %+v", d)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestWatchMessages(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	seedUsers(t, store, ann, bob)
	svc := NewConversationService(store, nil)

	id, err := svc.CreateConversation(ctx, sessionFor(ann), bobID, "Bob Stone", textMessage("m1", "hi", ann, 0))
	require.NoError(t, err)

	lengths := make(chan int, 8)
	w, err := svc.WatchMessages(ctx, id, func(list []models.Message, err error) {
		if err == nil {
			lengths <- len(list)
		}
	})
	require.NoError(t, err)
	t.Cleanup(w.Cancel)

	assert.Equal(t, 1, <-lengths)
	require.NoError(t, svc.SendMessage(ctx, sessionFor(bob), id, annID, "Ann Lee", textMessage("m2", "hey", bob, 1)))
	assert.Equal(t, 2, <-lengths)
}

func TestConversationService_Notifies(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	seedUsers(t, store, ann, bob)

	notifier := &mockNotifier{}
	notifier.On("NotifyNewMessage", mock.Anything, bobID, "Ann Lee", "hello").Once()
	notifier.On("NotifyNewMessage", mock.Anything, bobID, "Ann Lee", "Photo").Once()
	svc := NewConversationService(store, notifier)

	id, err := svc.CreateConversation(ctx, sessionFor(ann), bobID, "Bob Stone", textMessage("m1", "hello", ann, 0))
	require.NoError(t, err)

	photo := textMessage("m2", "", ann, 1)
	photo.Kind = models.KindPhoto
	photo.Media = mustParseURL(t, "https://cdn.example.com/images/p.png")
	require.NoError(t, svc.SendMessage(ctx, sessionFor(ann), id, bobID, "Bob Stone", photo))

	notifier.AssertExpectations(t)
}

func TestCreateConversation_RejectedInput(t *testing.T) {
	tests := []struct {
		name    string
		other   string
		message models.Message
		wantErr error
	}{
		{name: "identity with path separator", other: bobID + "/first_name", message: textMessage("m1", "hi", ann, 0), wantErr: models.ErrInvalidKey},
		{name: "empty identity", other: "", message: textMessage("m1", "hi", ann, 0), wantErr: models.ErrInvalidKey},
		{name: "message id with path separator", other: bobID, message: textMessage("m1/messages", "hi", ann, 0), wantErr: models.ErrInvalidKey},
		{name: "conversation with self", other: annID, message: textMessage("m1", "hi", ann, 0), wantErr: models.ErrSelfConversation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			store := newStore(t)
			seedUsers(t, store, ann, bob)
			svc := NewConversationService(store, nil)

			_, err := svc.CreateConversation(ctx, sessionFor(ann), tt.other, "Bob Stone", tt.message)
			assert.ErrorIs(t, err, tt.wantErr)

			name, err := store.Get(ctx, bobID+"/first_name")
			require.NoError(t, err)
			assert.JSONEq(t, `"Bob"`, string(name))

			for _, who := range []string{annID, bobID} {
				_, err := store.Get(ctx, who+"/conversations")
				assert.ErrorIs(t, err, models.ErrNotFound, who)
			}
		})
	}
}

func TestCreateConversation_ExistingThreadConflicts(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	seedUsers(t, store, ann, bob)
	svc := NewConversationService(store, nil)

	id, err := svc.CreateConversation(ctx, sessionFor(ann), bobID, "Bob Stone", textMessage("m1", "hello", ann, 0))
	require.NoError(t, err)
	require.NoError(t, svc.SendMessage(ctx, sessionFor(bob), id, annID, "Ann Lee", textMessage("m2", "hey", bob, 1)))

	_, err = svc.CreateConversation(ctx, sessionFor(bob), annID, "Ann Lee", textMessage("m1", "again", bob, 2))
	assert.ErrorIs(t, err, models.ErrConversationExists)

	messages, err := svc.GetAllMessages(ctx, id)
	require.NoError(t, err)
	assert.Len(t, messages, 2)

	theirs, err := svc.GetAllConversations(ctx, bobID)
	require.NoError(t, err)
	assert.Len(t, theirs, 1)
}

func TestSendMessage_RejectedKeys(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	seedUsers(t, store, ann, bob)
	svc := NewConversationService(store, nil)

	id, err := svc.CreateConversation(ctx, sessionFor(ann), bobID, "Bob Stone", textMessage("m1", "hello", ann, 0))
	require.NoError(t, err)

	tests := []struct {
		name           string
		conversationID string
		other          string
		messageID      string
	}{
		{name: "conversation id", conversationID: bobID + "/conversations", other: bobID, messageID: "m2"},
		{name: "recipient", conversationID: id, other: bobID + "/first_name", messageID: "m2"},
		{name: "message id", conversationID: id, other: bobID, messageID: "m2/x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := svc.SendMessage(ctx, sessionFor(ann), tt.conversationID, tt.other, "Bob Stone", textMessage(tt.messageID, "x", ann, 1))
			assert.ErrorIs(t, err, models.ErrInvalidKey)
		})
	}

	messages, err := svc.GetAllMessages(ctx, id)
	require.NoError(t, err)
	assert.Len(t, messages, 1)
}
