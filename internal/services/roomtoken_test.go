package services

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"

	"github.com/PAAPII10/slack-clone-sub001/internal/models"
)

func TestIssueTokenClaims(t *testing.T) {
	svc := NewRoomTokenService("api-key", "api-secret", "wss://media.example.com")

	issued, err := svc.IssueToken("42", "channel_huddle_abc123", "Alice")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if issued.TransportURL != "wss://media.example.com" {
		t.Errorf("transport url = %q", issued.TransportURL)
	}

	parsed, err := jwt.Parse(issued.Token, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte("api-secret"), nil
	})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		t.Fatal("token did not verify")
	}

	if claims["iss"] != "api-key" || claims["sub"] != "42" || claims["name"] != "Alice" {
		t.Errorf("claims = %v", claims)
	}
	video, ok := claims["video"].(map[string]interface{})
	if !ok {
		t.Fatalf("video grant missing: %v", claims["video"])
	}
	if video["room"] != "channel_huddle_abc123" || video["roomJoin"] != true {
		t.Errorf("video grant = %v", video)
	}
}

func TestIssueTokenRejectsBadInput(t *testing.T) {
	svc := NewRoomTokenService("api-key", "api-secret", "wss://media.example.com")

	if _, err := svc.IssueToken("", "room", "Alice"); err == nil {
		t.Error("empty identity accepted")
	}
	for _, room := range []string{"", "has space", "semi;colon", strings.Repeat("x", 65)} {
		if _, err := svc.IssueToken("42", room, "Alice"); err == nil {
			t.Errorf("room name %q accepted", room)
		}
	}
}

func TestDeleteRoomCallsTransport(t *testing.T) {
	var gotPath, gotAuth, gotRoom string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		var payload map[string]string
		_ = json.Unmarshal(body, &payload)
		gotRoom = payload["room"]
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	svc := NewRoomTokenService("api-key", "api-secret", srv.URL)
	if err := svc.DeleteRoom("huddle_xyz"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if gotPath != "/twirp/livekit.RoomService/DeleteRoom" {
		t.Errorf("path = %q", gotPath)
	}
	if gotRoom != "huddle_xyz" {
		t.Errorf("room = %q", gotRoom)
	}
	if !strings.HasPrefix(gotAuth, "Bearer ") {
		t.Fatalf("authorization = %q", gotAuth)
	}

	// The admin token must verify against the shared secret and carry
	// the roomAdmin grant.
	parsed, err := jwt.Parse(strings.TrimPrefix(gotAuth, "Bearer "), func(token *jwt.Token) (interface{}, error) {
		return []byte("api-secret"), nil
	})
	if err != nil || !parsed.Valid {
		t.Fatalf("admin token invalid: %v", err)
	}
	video := parsed.Claims.(jwt.MapClaims)["video"].(map[string]interface{})
	if video["roomAdmin"] != true {
		t.Errorf("admin grant = %v", video)
	}
}

func TestDeleteRoomSurfacesServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "room does not exist", http.StatusNotFound)
	}))
	defer srv.Close()

	svc := NewRoomTokenService("api-key", "api-secret", srv.URL)
	if err := svc.DeleteRoom("huddle_gone"); err == nil {
		t.Fatal("server error swallowed")
	}
}

func TestGeneratedRoomIDsSatisfyTransportCharset(t *testing.T) {
	for i := 0; i < 50; i++ {
		for _, id := range []string{
			generateRoomID(models.ChannelSource(1)),
			generateRoomID(models.ConversationSource(1)),
		} {
			if !roomNamePattern.MatchString(id) {
				t.Fatalf("minted room id %q outside transport charset", id)
			}
		}
	}
}
