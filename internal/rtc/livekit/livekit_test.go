package livekit

import (
	"context"
	"testing"

	"github.com/golang-jwt/jwt/v5"
)

func TestRequestRTCTokenGrantsRoomJoin(t *testing.T) {
	p := New("devkey", "devsecret-devsecret-devsecret-32", "ws://localhost:7880")

	token, err := p.RequestRTCToken(context.Background(), "app1", "c1", "alice")
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}

	// LiveKit tokens are HS256 JWTs signed with the API secret.
	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(tk *jwt.Token) (interface{}, error) {
		return []byte("devsecret-devsecret-devsecret-32"), nil
	})
	if err != nil || !parsed.Valid {
		t.Fatalf("token did not verify: %v", err)
	}

	if claims["sub"] != "alice" {
		t.Fatalf("expected identity alice, got %v", claims["sub"])
	}
	video, ok := claims["video"].(map[string]interface{})
	if !ok {
		t.Fatalf("missing video grant: %v", claims)
	}
	if video["room"] != RoomName("app1", "c1") {
		t.Fatalf("unexpected room grant: %v", video["room"])
	}
	if join, _ := video["roomJoin"].(bool); !join {
		t.Fatalf("expected roomJoin grant: %v", video)
	}
}

func TestRequestRTCTokenValidation(t *testing.T) {
	p := New("devkey", "devsecret", "ws://localhost:7880")

	if _, err := p.RequestRTCToken(context.Background(), "app1", "", "alice"); err == nil {
		t.Fatal("expected error for empty channel id")
	}
	if _, err := p.RequestRTCToken(context.Background(), "app1", "c1", ""); err == nil {
		t.Fatal("expected error for empty user id")
	}
}

func TestRequestUserMapIsStable(t *testing.T) {
	p := New("devkey", "devsecret", "ws://localhost:7880")

	m1, err := p.RequestUserMap(context.Background(), "app1", "c1", "bob")
	if err != nil {
		t.Fatalf("user map: %v", err)
	}
	m2, err := p.RequestUserMap(context.Background(), "app1", "c2", "bob")
	if err != nil {
		t.Fatalf("user map: %v", err)
	}
	if m1["bob"] == 0 || m1["bob"] != m2["bob"] {
		t.Fatalf("expected stable non-zero uid, got %d and %d", m1["bob"], m2["bob"])
	}
}
