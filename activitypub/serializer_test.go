package activitypub

import (
	"errors"
	"strings"
	"testing"
)

func TestSerializeRequiresCoreFields(t *testing.T) {
	_, err := Serialize(&Activity{Type: TypeCreate, Actor: "https://a.example/u/x"})
	if !errors.Is(err, ErrMalformedActivity) {
		t.Errorf("Expected ErrMalformedActivity for missing id, got %v", err)
	}

	_, err = Serialize(&Activity{Id: "https://a.example/activities/1", Type: "Dance", Actor: "https://a.example/u/x"})
	if !errors.Is(err, ErrUnknownType) {
		t.Errorf("Expected ErrUnknownType, got %v", err)
	}
}

func TestSerializeStampsContext(t *testing.T) {
	a := &Activity{
		Id:    "https://a.example/activities/1",
		Type:  TypeLike,
		Actor: "https://a.example/u/x",
	}
	data, err := Serialize(a)
	if err != nil {
		t.Fatalf("Serialize failed: %v", err)
	}
	if !strings.Contains(string(data), "https://www.w3.org/ns/activitystreams") {
		t.Errorf("Expected JSON-LD context in output, got %s", data)
	}
}

func TestParseActivityStringObject(t *testing.T) {
	data := []byte(`{
		"id": "https://a.example/activities/1",
		"type": "Like",
		"actor": "https://a.example/u/x",
		"object": "https://b.example/e/42"
	}`)
	a, err := ParseActivity(data)
	if err != nil {
		t.Fatalf("ParseActivity failed: %v", err)
	}
	if a.ObjectURI() != "https://b.example/e/42" {
		t.Errorf("Expected object URI https://b.example/e/42, got %s", a.ObjectURI())
	}
}

func TestParseActivityEmbeddedPage(t *testing.T) {
	data := []byte(`{
		"id": "https://a.example/activities/2",
		"type": "Create",
		"actor": "https://a.example/u/x",
		"to": ["https://www.w3.org/ns/activitystreams#Public"],
		"object": {
			"id": "https://a.example/e/7",
			"type": "Page",
			"attributedTo": "https://a.example/u/x",
			"audience": "https://b.example/m/golang",
			"name": "A title",
			"content": "A body",
			"published": "2026-08-20T10:00:00Z"
		}
	}`)
	a, err := ParseActivity(data)
	if err != nil {
		t.Fatalf("ParseActivity failed: %v", err)
	}
	obj := a.InnerObject()
	if obj == nil {
		t.Fatal("Expected an embedded object")
	}
	if obj.Type != ObjectPage || obj.Name != "A title" {
		t.Errorf("Expected Page 'A title', got %s %q", obj.Type, obj.Name)
	}
	if obj.Published == nil || obj.Published.Year() != 2026 {
		t.Errorf("Expected parsed published timestamp, got %v", obj.Published)
	}
}

func TestParseActivityNestedUndo(t *testing.T) {
	data := []byte(`{
		"id": "https://a.example/activities/3",
		"type": "Undo",
		"actor": "https://a.example/u/x",
		"object": {
			"id": "https://a.example/activities/1",
			"type": "Follow",
			"actor": "https://a.example/u/x",
			"object": "https://b.example/u/y"
		}
	}`)
	a, err := ParseActivity(data)
	if err != nil {
		t.Fatalf("ParseActivity failed: %v", err)
	}
	inner := a.InnerActivity()
	if inner == nil {
		t.Fatal("Expected a nested activity")
	}
	if inner.Type != TypeFollow {
		t.Errorf("Expected inner Follow, got %s", inner.Type)
	}
	if inner.ObjectURI() != "https://b.example/u/y" {
		t.Errorf("Expected inner object https://b.example/u/y, got %s", inner.ObjectURI())
	}
}

func TestParseActivityRejectsGarbage(t *testing.T) {
	for _, data := range []string{
		`not json`,
		`{"type": "Like", "actor": "https://a.example/u/x"}`,
		`{"id": "https://a.example/1", "type": "Teleport", "actor": "https://a.example/u/x"}`,
	} {
		if _, err := ParseActivity([]byte(data)); err == nil {
			t.Errorf("Expected error for %q, got nil", data)
		}
	}
}

func TestSerializeParseRoundTripKeepsAddressing(t *testing.T) {
	a := &Activity{
		Id:    "https://a.example/activities/4",
		Type:  TypeCreate,
		Actor: "https://a.example/u/x",
		To:    []string{"https://www.w3.org/ns/activitystreams#Public"},
		Cc:    []string{"https://a.example/u/x/followers"},
		Object: &Object{
			Id:   "https://a.example/p/1",
			Type: ObjectNote, Content: "hi",
		},
	}
	data, err := Serialize(a)
	if err != nil {
		t.Fatalf("Serialize failed: %v", err)
	}
	back, err := ParseActivity(data)
	if err != nil {
		t.Fatalf("ParseActivity failed: %v", err)
	}
	if len(back.To) != 1 || len(back.Cc) != 1 {
		t.Errorf("Expected addressing to survive the round trip, got to=%v cc=%v", back.To, back.Cc)
	}
	if back.InnerObject() == nil || back.InnerObject().Content != "hi" {
		t.Errorf("Expected embedded note to survive, got %+v", back.Object)
	}
}
