package usage

import "time"

// bytesPerGB converts stored byte counters into the GB figures clients see.
const bytesPerGB = 1 << 30

// Category groups files by MIME type for the storage breakdown.
type Category string

const (
	CategoryImages    Category = "images"
	CategoryDocuments Category = "documents"
	CategoryVideos    Category = "videos"
	CategoryOther     Category = "other"
)

// Record is a usage_stats row. All sizes are bytes.
type Record struct {
	UserID            string
	TotalStorageBytes int64
	UsedStorageBytes  int64
	FilesUploaded     int64
	FilesDownloaded   int64
	FilesDeleted      int64
	ImagesBytes       int64
	DocumentsBytes    int64
	VideosBytes       int64
	OtherBytes        int64
	ActivityByWeekday [7]int64
	LastActive        *time.Time
}

// Delta is one accounting event applied atomically to a user's record.
type Delta struct {
	UsedBytes  int64
	Category   Category
	Uploaded   int64
	Downloaded int64
	Deleted    int64
	Weekday    time.Weekday
	At         time.Time
}

// FileTypeUsage is the per-category storage breakdown in GB.
type FileTypeUsage struct {
	Images    float64 `json:"images"`
	Documents float64 `json:"documents"`
	Videos    float64 `json:"videos"`
	Other     float64 `json:"other"`
}

// Stats is the client-facing view of a Record.
type Stats struct {
	UserID            string        `json:"user_id"`
	TotalStorageGB    float64       `json:"total_storage_gb"`
	UsedStorageGB     float64       `json:"used_storage_gb"`
	FilesUploaded     int64         `json:"files_uploaded"`
	FilesDownloaded   int64         `json:"files_downloaded"`
	FilesDeleted      int64         `json:"files_deleted"`
	FileTypes         FileTypeUsage `json:"file_types"`
	ActivityByWeekday [7]int64      `json:"activity_by_weekday"`
	LastActive        *time.Time    `json:"last_active,omitempty"`
}

// Stats converts the stored byte counters into GB.
func (r Record) Stats() Stats {
	return Stats{
		UserID:          r.UserID,
		TotalStorageGB:  toGB(r.TotalStorageBytes),
		UsedStorageGB:   toGB(r.UsedStorageBytes),
		FilesUploaded:   r.FilesUploaded,
		FilesDownloaded: r.FilesDownloaded,
		FilesDeleted:    r.FilesDeleted,
		FileTypes: FileTypeUsage{
			Images:    toGB(r.ImagesBytes),
			Documents: toGB(r.DocumentsBytes),
			Videos:    toGB(r.VideosBytes),
			Other:     toGB(r.OtherBytes),
		},
		ActivityByWeekday: r.ActivityByWeekday,
		LastActive:        r.LastActive,
	}
}

func toGB(b int64) float64 {
	return float64(b) / bytesPerGB
}

func gbToBytes(gb float64) int64 {
	return int64(gb * bytesPerGB)
}
