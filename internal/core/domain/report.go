package domain

import "fmt"

type LoadOptions struct {
	MessagesDir string
	ImagesDir   string
	BatchSize   int
}

type LoadReport struct {
	MessagesSeen        int   `json:"messages_seen"`
	MessagesInserted    int64 `json:"messages_inserted"`
	MessagesSkipped     int   `json:"messages_skipped"`
	AttachmentsSeen     int   `json:"attachments_seen"`
	AttachmentsInserted int64 `json:"attachments_inserted"`
	AttachmentsRejected int   `json:"attachments_rejected"`
	AttachmentsOrphaned int   `json:"attachments_orphaned"`
	TimestampsDefaulted int   `json:"timestamps_defaulted"`
}

func (r LoadReport) MessagesDuplicate() int64 {
	return int64(r.MessagesSeen-r.MessagesSkipped) - r.MessagesInserted
}

func (r LoadReport) AttachmentsDuplicate() int64 {
	return int64(r.AttachmentsSeen-r.AttachmentsRejected-r.AttachmentsOrphaned) - r.AttachmentsInserted
}

func (r LoadReport) String() string {
	return fmt.Sprintf(
		"messages: inserted=%d duplicate=%d skipped=%d; attachments: inserted=%d duplicate=%d rejected=%d orphaned=%d",
		r.MessagesInserted, r.MessagesDuplicate(), r.MessagesSkipped,
		r.AttachmentsInserted, r.AttachmentsDuplicate(), r.AttachmentsRejected, r.AttachmentsOrphaned,
	)
}

type EnrichOptions struct {
	MinScore  float64
	BatchSize int
}

type EnrichReport struct {
	Selected            int   `json:"selected"`
	Labeled             int   `json:"labeled"`
	Unlabeled           int   `json:"unlabeled"`
	Missing             int   `json:"missing"`
	Failed              int   `json:"failed"`
	AnnotationsInserted int64 `json:"annotations_inserted"`
}

func (r EnrichReport) String() string {
	return fmt.Sprintf(
		"selected=%d labeled=%d unlabeled=%d missing=%d failed=%d annotations_inserted=%d",
		r.Selected, r.Labeled, r.Unlabeled, r.Missing, r.Failed, r.AnnotationsInserted,
	)
}
