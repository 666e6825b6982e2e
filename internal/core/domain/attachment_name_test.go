package domain

import "testing"

func TestParseAttachmentNameAcceptsScraperLayout(t *testing.T) {
	got, err := ParseAttachmentName("message_101_5523.jpg")
	if err != nil {
		t.Fatalf("ParseAttachmentName() error = %v", err)
	}
	if got.OwnerKey != 101 || got.MediaID != "5523" || got.Ext != ".jpg" {
		t.Fatalf("unexpected decode: %+v", got)
	}
	if got.String() != "message_101_5523.jpg" {
		t.Fatalf("unexpected round trip: %s", got.String())
	}
}

func TestParseAttachmentNameKeepsUnderscoresInMediaID(t *testing.T) {
	got, err := ParseAttachmentName("message_7_abc_def.PNG")
	if err != nil {
		t.Fatalf("ParseAttachmentName() error = %v", err)
	}
	if got.OwnerKey != 7 || got.MediaID != "abc_def" || got.Ext != ".png" {
		t.Fatalf("unexpected decode: %+v", got)
	}
}

func TestParseAttachmentNameRejectsMalformedNames(t *testing.T) {
	cases := []string{
		"",
		"message_101.jpg",
		"message__55.jpg",
		"message_abc_55.jpg",
		"message_-4_55.jpg",
		"message_0_55.jpg",
		"message_007_55.jpg",
		"msg_101_55.jpg",
		"message_101_55.gif",
		"message_101_.jpg",
		"2024-01-01/message_101_55.jpg",
		"_scrape_metadata.json",
	}
	for _, name := range cases {
		if _, err := ParseAttachmentName(name); !IsKind(err, ErrInvalidKey) {
			t.Fatalf("ParseAttachmentName(%q) expected ErrInvalidKey, got %v", name, err)
		}
	}
}
