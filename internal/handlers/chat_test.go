package handlers

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/atelier-hq/atelier-backend/internal/mocks"
	"github.com/atelier-hq/atelier-backend/internal/models"
	"github.com/atelier-hq/atelier-backend/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestChatRequiresAuthentication(t *testing.T) {
	f := newChatFixture(t, nil)

	w := f.do(t, http.MethodGet, "/api/chat/conversations", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = f.do(t, http.MethodGet, "/api/chat/conversations", "tok-unknown", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	var body errorBody
	decode(t, w, &body)
	assert.Equal(t, "authentication", body.Kind)
}

func TestCreateDirectConversationOverHTTP(t *testing.T) {
	f := newChatFixture(t, nil)
	req := map[string]interface{}{
		"type":         "direct",
		"participants": []models.Principal{staffE, clientK},
	}

	w := f.do(t, http.MethodPost, "/api/chat/conversations", "tok-e", req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var first struct {
		Conversation models.Conversation `json:"conversation"`
		Created      bool                `json:"created"`
	}
	decode(t, w, &first)
	assert.True(t, first.Created)
	assert.Len(t, first.Conversation.Participants, 2)

	req["participants"] = []models.Principal{clientK, staffE}
	w = f.do(t, http.MethodPost, "/api/chat/conversations", "tok-k", req)
	require.Equal(t, http.StatusOK, w.Code)

	var second struct {
		Conversation models.Conversation `json:"conversation"`
		Created      bool                `json:"created"`
	}
	decode(t, w, &second)
	assert.False(t, second.Created)
	assert.Equal(t, first.Conversation.ID, second.Conversation.ID)

	w = f.do(t, http.MethodPost, "/api/chat/conversations", "tok-l", req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.do(t, http.MethodPost, "/api/chat/conversations", "tok-e", map[string]string{"type": "direct"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSendAndListMessagesOverHTTP(t *testing.T) {
	f := newChatFixture(t, nil)
	conv := f.direct(t, staffE, clientK)
	path := "/api/chat/conversations/" + conv.ID + "/messages"

	w := f.do(t, http.MethodPost, path, "tok-e", services.TextContent("Hola"))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = f.do(t, http.MethodPost, path, "tok-l", services.TextContent("intruder"))
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.do(t, http.MethodPost, path, "tok-e", services.TextContent(""))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodGet, path+"?limit=10&offset=0", "tok-k", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var page struct {
		Messages []models.Message `json:"messages"`
		Limit    int              `json:"limit"`
	}
	decode(t, w, &page)
	require.Len(t, page.Messages, 1)
	assert.Equal(t, "Hola", page.Messages[0].Body)
	assert.Equal(t, 10, page.Limit)

	w = f.do(t, http.MethodGet, path+"?offset=abc", "tok-k", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodGet, path+"?offset=-1", "tok-k", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodGet, path, "tok-l", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.do(t, http.MethodGet, "/api/chat/conversations/missing/messages", "tok-k", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestInboxOverHTTP(t *testing.T) {
	f := newChatFixture(t, nil)
	conv := f.direct(t, staffE, clientK)
	_, err := f.m.Messages.Send(context.Background(), conv.ID, staffE, services.TextContent("ping"))
	require.NoError(t, err)

	w := f.do(t, http.MethodGet, "/api/chat/conversations", "tok-k", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var inbox struct {
		Conversations []services.ConversationSummary `json:"conversations"`
	}
	decode(t, w, &inbox)
	require.Len(t, inbox.Conversations, 1)
	assert.EqualValues(t, 1, inbox.Conversations[0].UnreadCount)
	require.NotNil(t, inbox.Conversations[0].LastMessage)
	assert.Equal(t, "ping", inbox.Conversations[0].LastMessage.Body)
}

func TestMarkReadAndSeenOverHTTP(t *testing.T) {
	f := newChatFixture(t, nil)
	conv := f.direct(t, staffE, clientK)
	msg, err := f.m.Messages.Send(context.Background(), conv.ID, staffE, services.TextContent("Hola"))
	require.NoError(t, err)

	var seen struct {
		SeenByAll bool `json:"seenByAll"`
	}
	w := f.do(t, http.MethodGet, "/api/chat/messages/"+msg.ID+"/seen", "tok-e", nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &seen)
	assert.False(t, seen.SeenByAll)

	w = f.do(t, http.MethodPost, "/api/chat/conversations/"+conv.ID+"/read", "tok-k", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodGet, "/api/chat/messages/"+msg.ID+"/seen", "tok-e", nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &seen)
	assert.True(t, seen.SeenByAll)

	w = f.do(t, http.MethodGet, "/api/chat/conversations/"+conv.ID+"/receipts", "tok-e", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var receipts struct {
		Receipts []services.Receipt `json:"receipts"`
	}
	decode(t, w, &receipts)
	assert.Len(t, receipts.Receipts, 2)

	w = f.do(t, http.MethodPost, "/api/chat/conversations/"+conv.ID+"/read", "tok-l", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.do(t, http.MethodGet, "/api/chat/messages/"+msg.ID+"/seen", "tok-l", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestDeleteOverHTTP(t *testing.T) {
	f := newChatFixture(t, nil)
	conv := f.direct(t, staffE, clientK)
	msg, err := f.m.Messages.Send(context.Background(), conv.ID, staffE, services.TextContent("typo"))
	require.NoError(t, err)

	w := f.do(t, http.MethodDelete, "/api/chat/messages/"+msg.ID, "tok-k", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.do(t, http.MethodDelete, "/api/chat/messages/"+msg.ID, "tok-e", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodDelete, "/api/chat/conversations/"+conv.ID, "tok-l", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.do(t, http.MethodDelete, "/api/chat/conversations/"+conv.ID, "tok-k", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodGet, "/api/chat/conversations/"+conv.ID, "tok-k", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestParticipantProfileOverHTTP(t *testing.T) {
	f := newChatFixture(t, nil)
	require.NoError(t, f.db.Create(&models.EmployeeProfile{ID: staffE.ID, Name: "Elena", Position: "Designer"}).Error)
	conv := f.direct(t, staffE, clientK)

	w := f.do(t, http.MethodGet, "/api/chat/conversations/"+conv.ID+"/participants/employee/"+staffE.ID+"/profile", "tok-k", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Profile services.Profile `json:"profile"`
	}
	decode(t, w, &resp)
	assert.Equal(t, "Elena", resp.Profile.Name)
	assert.Equal(t, "Designer", resp.Profile.Title)

	w = f.do(t, http.MethodGet, "/api/chat/conversations/"+conv.ID+"/participants/robot/x/profile", "tok-k", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestProjectRoutesAreEmployeeOnly(t *testing.T) {
	f := newChatFixture(t, nil)
	seed := map[string]interface{}{"projectRef": "P-1", "name": "Rebrand", "clientId": clientK.ID, "staffIds": []string{staffE.ID}}

	w := f.do(t, http.MethodPost, "/api/chat/projects", "tok-k", seed)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.do(t, http.MethodPost, "/api/chat/projects", "tok-e", seed)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = f.do(t, http.MethodPost, "/api/chat/projects", "tok-e", seed)
	assert.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodPost, "/api/chat/projects/P-1/staff", "tok-e", map[string]string{"employeeId": "emp-9"})
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Conversation models.Conversation `json:"conversation"`
	}
	decode(t, w, &resp)
	assert.True(t, resp.Conversation.HasParticipant(models.Employee("emp-9")))

	w = f.do(t, http.MethodDelete, "/api/chat/projects/P-1/staff/emp-9", "tok-e", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodPost, "/api/chat/projects/P-1/completed", "tok-e", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var completed struct {
		Conversation models.Conversation `json:"conversation"`
	}
	decode(t, w, &completed)
	assert.NotNil(t, completed.Conversation.ScheduledDeletion)

	w = f.do(t, http.MethodPost, "/api/chat/projects/P-none/completed", "tok-e", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestProjectConversationGuardsOverHTTP(t *testing.T) {
	f := newChatFixture(t, nil)
	claim := map[string]interface{}{
		"type":         models.ConversationGroupProject,
		"name":         "Rebrand",
		"participants": []models.Principal{clientL},
		"projectRef":   "P-2",
	}

	w := f.do(t, http.MethodPost, "/api/chat/conversations", "tok-l", claim)
	assert.Equal(t, http.StatusNotFound, w.Code, "a ref cannot be claimed before the project exists")

	seed := map[string]interface{}{"projectRef": "P-2", "name": "Rebrand", "clientId": clientK.ID, "staffIds": []string{staffE.ID}}
	w = f.do(t, http.MethodPost, "/api/chat/projects", "tok-e", seed)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created struct {
		Conversation models.Conversation `json:"conversation"`
	}
	decode(t, w, &created)
	assert.False(t, created.Conversation.HasParticipant(clientL))

	w = f.do(t, http.MethodPost, "/api/chat/conversations", "tok-l", claim)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.NotContains(t, w.Body.String(), created.Conversation.ID)

	w = f.do(t, http.MethodDelete, "/api/chat/conversations/"+created.Conversation.ID, "tok-k", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = f.do(t, http.MethodGet, "/api/chat/conversations/"+created.Conversation.ID, "tok-k", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestOnlineOverHTTP(t *testing.T) {
	f := newChatFixture(t, nil)
	_, err := f.m.Hub.Attach(context.Background(), "tok-e", newFakeConn("c-e"))
	require.NoError(t, err)

	w := f.do(t, http.MethodGet, "/api/chat/online", "tok-k", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Online []string `json:"online"`
	}
	decode(t, w, &resp)
	assert.Equal(t, []string{staffE.Key()}, resp.Online)
}

func multipartFile(t *testing.T, field, name string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	part, err := mw.CreateFormFile(field, name)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return body, mw.FormDataContentType()
}

func TestUploadAttachmentOverHTTP(t *testing.T) {
	ctrl := gomock.NewController(t)
	blobs := mocks.NewMockBlobStore(ctrl)
	blobs.EXPECT().
		Put(gomock.Any(), gomock.Any(), gomock.Any(), int64(11), gomock.Any()).
		DoAndReturn(func(_ context.Context, key string, body io.Reader, _ int64, _ string) (string, error) {
			raw, err := io.ReadAll(body)
			require.NoError(t, err)
			assert.Equal(t, "hello world", string(raw))
			return "https://cdn.test/" + key, nil
		})

	f := newChatFixture(t, blobs)
	conv := f.direct(t, staffE, clientK)
	path := "/api/chat/conversations/" + conv.ID + "/attachments"

	body, contentType := multipartFile(t, "file", "notes.txt", []byte("hello world"))
	req := httptest.NewRequest(http.MethodPost, path, body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer tok-k")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp struct {
		Message models.Message `json:"message"`
	}
	decode(t, w, &resp)
	assert.Equal(t, models.MessageFile, resp.Message.Kind)
	assert.Equal(t, "notes.txt", resp.Message.AttachmentName)

	w = f.do(t, http.MethodGet, path+"?kind=file", "tok-e", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var listed struct {
		Attachments []models.Message `json:"attachments"`
	}
	decode(t, w, &listed)
	assert.Len(t, listed.Attachments, 1)

	body, contentType = multipartFile(t, "other", "notes.txt", []byte("x"))
	req = httptest.NewRequest(http.MethodPost, path, body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer tok-k")
	w = httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUploadStorageFailureOverHTTP(t *testing.T) {
	ctrl := gomock.NewController(t)
	blobs := mocks.NewMockBlobStore(ctrl)
	blobs.EXPECT().Put(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return("", errors.New("bucket gone"))

	f := newChatFixture(t, blobs)
	conv := f.direct(t, staffE, clientK)

	body, contentType := multipartFile(t, "file", "a.txt", []byte("abc"))
	req := httptest.NewRequest(http.MethodPost, "/api/chat/conversations/"+conv.ID+"/attachments", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer tok-k")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	var resp errorBody
	decode(t, w, &resp)
	assert.Equal(t, "persistence", resp.Kind)
	assert.NotContains(t, resp.Error, "bucket gone")
}

func TestUploadRejectsOversizedBodyBeforeStoring(t *testing.T) {
	ctrl := gomock.NewController(t)
	blobs := mocks.NewMockBlobStore(ctrl) // no Put expected

	f := newChatFixture(t, blobs)
	conv := f.direct(t, staffE, clientK)

	body, contentType := multipartFile(t, "file", "huge.bin", bytes.Repeat([]byte("a"), 3<<20))
	req := httptest.NewRequest(http.MethodPost, "/api/chat/conversations/"+conv.ID+"/attachments", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer tok-k")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	var resp errorBody
	decode(t, w, &resp)
	assert.Equal(t, "validation", resp.Kind)
	assert.Contains(t, resp.Error, "upload limit")

	var stored int64
	require.NoError(t, f.db.Model(&models.Message{}).Count(&stored).Error)
	assert.Zero(t, stored)
}
