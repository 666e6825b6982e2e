package domain

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

const attachmentPrefix = "message_"

var attachmentExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
}

// AttachmentName is the decoded form of an attachment file name.
type AttachmentName struct {
	OwnerKey int64
	MediaID  string
	Ext      string
}

// ParseAttachmentName decodes "message_<owner>_<media>.<ext>".
//
// <owner> is a positive decimal message id, <media> is a non-empty token without
// path separators, and <ext> is one of jpg, jpeg or png (case-insensitive). Any
// other shape is rejected with ErrInvalidKey.
func ParseAttachmentName(name string) (AttachmentName, error) {
	if name == "" || name != filepath.Base(name) {
		return AttachmentName{}, WrapError(ErrInvalidKey, "parse attachment name", fmt.Errorf("%q is not a bare file name", name))
	}

	ext := strings.ToLower(filepath.Ext(name))
	if !attachmentExtensions[ext] {
		return AttachmentName{}, WrapError(ErrInvalidKey, "parse attachment name", fmt.Errorf("%q has unsupported extension", name))
	}

	stem := strings.TrimSuffix(name, filepath.Ext(name))
	if !strings.HasPrefix(stem, attachmentPrefix) {
		return AttachmentName{}, WrapError(ErrInvalidKey, "parse attachment name", fmt.Errorf("%q lacks %q prefix", name, attachmentPrefix))
	}

	owner, media, ok := strings.Cut(strings.TrimPrefix(stem, attachmentPrefix), "_")
	if !ok || media == "" {
		return AttachmentName{}, WrapError(ErrInvalidKey, "parse attachment name", fmt.Errorf("%q lacks media id", name))
	}

	key, err := strconv.ParseInt(owner, 10, 64)
	if err != nil || key <= 0 || strconv.FormatInt(key, 10) != owner {
		return AttachmentName{}, WrapError(ErrInvalidKey, "parse attachment name", fmt.Errorf("%q has malformed message id %q", name, owner))
	}

	return AttachmentName{OwnerKey: key, MediaID: media, Ext: ext}, nil
}

func (n AttachmentName) String() string {
	return fmt.Sprintf("%s%d_%s%s", attachmentPrefix, n.OwnerKey, n.MediaID, n.Ext)
}
