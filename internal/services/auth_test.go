package services

import (
	"testing"

	"github.com/PAAPII10/slack-clone-sub001/internal/models"
)

func TestRegisterLoginValidate(t *testing.T) {
	db := newTestDB(t)
	svc := NewAuthService(db, "test-secret")

	if _, err := svc.Register("alice", "s3cret-pass", "Alice", "Alice Example"); err != nil {
		t.Fatalf("register: %v", err)
	}

	var user models.User
	if err := db.Where("username = ?", "alice").First(&user).Error; err != nil {
		t.Fatalf("load user: %v", err)
	}
	if user.PasswordHash == "s3cret-pass" {
		t.Fatal("password stored in plain text")
	}
	if user.DisplayName != "Alice" || user.FullName != "Alice Example" {
		t.Errorf("profile fields = %q / %q", user.DisplayName, user.FullName)
	}

	token, err := svc.Login("alice", "s3cret-pass")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	userID, err := svc.ValidateToken(token)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if userID != user.ID {
		t.Fatalf("token resolves to user %d, want %d", userID, user.ID)
	}
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	db := newTestDB(t)
	svc := NewAuthService(db, "test-secret")

	if _, err := svc.Register("bob", "right-pass", "", ""); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := svc.Login("bob", "wrong-pass"); err == nil {
		t.Fatal("wrong password accepted")
	}
	if _, err := svc.Login("nobody", "right-pass"); err == nil {
		t.Fatal("unknown user accepted")
	}
}

func TestRegisterRejectsDuplicateUsername(t *testing.T) {
	db := newTestDB(t)
	svc := NewAuthService(db, "test-secret")

	if _, err := svc.Register("carol", "pass-one", "", ""); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := svc.Register("carol", "pass-two", "", ""); err == nil {
		t.Fatal("duplicate username accepted")
	}
}

func TestValidateTokenRejectsGarbage(t *testing.T) {
	db := newTestDB(t)
	svc := NewAuthService(db, "test-secret")

	if _, err := svc.ValidateToken("not-a-jwt"); err == nil {
		t.Fatal("garbage token accepted")
	}

	other := NewAuthService(db, "other-secret")
	token, err := other.Register("dave", "pass", "", "")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := svc.ValidateToken(token); err == nil {
		t.Fatal("token signed with a different secret accepted")
	}
}
