package services

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// roomNamePattern is the only charset the media provider accepts; it
// also matches every identifier generateRoomID can mint.
var roomNamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

var errInvalidRoomName = errors.New("invalid room name")

// RoomTokenService issues access credentials for the external real-time
// media transport. The huddle service only tracks membership metadata;
// clients call IssueToken after a lifecycle mutation commits and connect
// to the media host themselves.
type RoomTokenService struct {
	apiKey       string
	apiSecret    []byte
	transportURL string
	httpClient   *http.Client
	tokenTTL     time.Duration
}

func NewRoomTokenService(apiKey, apiSecret, transportURL string) *RoomTokenService {
	return &RoomTokenService{
		apiKey:       apiKey,
		apiSecret:    []byte(apiSecret),
		transportURL: transportURL,
		httpClient:   &http.Client{Timeout: 10 * time.Second},
		tokenTTL:     6 * time.Hour,
	}
}

type RoomToken struct {
	Token        string `json:"token"`
	TransportURL string `json:"transport_url"`
}

// IssueToken mints a signed room grant for one participant identity.
func (s *RoomTokenService) IssueToken(identity, roomName, displayName string) (*RoomToken, error) {
	if identity == "" {
		return nil, errors.New("identity is required")
	}
	if !roomNamePattern.MatchString(roomName) {
		return nil, errInvalidRoomName
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"iss":  s.apiKey,
		"sub":  identity,
		"jti":  uuid.NewString(),
		"name": displayName,
		"iat":  now.Unix(),
		"exp":  now.Add(s.tokenTTL).Unix(),
		"video": map[string]interface{}{
			"room":     roomName,
			"roomJoin": true,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.apiSecret)
	if err != nil {
		return nil, err
	}

	return &RoomToken{Token: signed, TransportURL: s.transportURL}, nil
}

// DeleteRoom asks the media host to tear a room down, force-disconnecting
// everyone still on the transport. Called after a session ends; the
// session state has already committed, so failures are logged upstream
// and never roll anything back.
func (s *RoomTokenService) DeleteRoom(roomName string) error {
	if !roomNamePattern.MatchString(roomName) {
		return errInvalidRoomName
	}

	adminToken, err := s.adminToken(roomName)
	if err != nil {
		return err
	}

	body, err := json.Marshal(map[string]string{"room": roomName})
	if err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodPost, s.transportURL+"/twirp/livekit.RoomService/DeleteRoom", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+adminToken)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("delete room: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("delete room: %s: %s", resp.Status, data)
	}
	return nil
}

func (s *RoomTokenService) adminToken(roomName string) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"iss": s.apiKey,
		"jti": uuid.NewString(),
		"iat": now.Unix(),
		"exp": now.Add(time.Minute).Unix(),
		"video": map[string]interface{}{
			"room":      roomName,
			"roomAdmin": true,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.apiSecret)
}
