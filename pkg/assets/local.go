package assets

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

var videoExtensions = map[string]bool{
	".mp4":  true,
	".mov":  true,
	".mkv":  true,
	".webm": true,
	".mpg":  true,
	".mpeg": true,
}

// IsVideo reports whether name has a recognised video extension.
func IsVideo(name string) bool {
	return videoExtensions[strings.ToLower(filepath.Ext(name))]
}

// ListVideos returns the video files directly under dir, sorted.
func ListVideos(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var videos []string
	for _, entry := range entries {
		if entry.IsDir() || !IsVideo(entry.Name()) {
			continue
		}
		videos = append(videos, filepath.Join(dir, entry.Name()))
	}
	sort.Strings(videos)
	return videos, nil
}
