package assets

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
)

func touch(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestResolve(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "forest.mp4"))
	touch(t, filepath.Join(dir, "loose.mov"))

	lib := NewLibrary(dir,
		map[string]string{"forest": "forest.mp4"},
		map[string]string{"fox": "fox.mov"},
	)

	tests := []struct {
		name    string
		resolve func(string) (string, error)
		target  string
		want    string
		err     error
	}{
		{"blank", lib.ResolveBackground, "", "", nil},
		{"scene id", lib.ResolveBackground, "forest", filepath.Join(dir, "forest.mp4"), nil},
		{"relative file", lib.ResolveBackground, "loose.mov", filepath.Join(dir, "loose.mov"), nil},
		{"absolute file", lib.ResolveBackground, filepath.Join(dir, "forest.mp4"), filepath.Join(dir, "forest.mp4"), nil},
		{"overlay id even if missing", lib.ResolveOverlay, "fox", filepath.Join(dir, "fox.mov"), nil},
		{"unknown", lib.ResolveBackground, "nowhere", "nowhere", ErrUnknownScene},
		{"scene id is not an overlay", lib.ResolveOverlay, "forest", "forest", ErrUnknownScene},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.resolve(tt.target)
			if !errors.Is(err, tt.err) {
				t.Fatalf("err = %v, want %v", err, tt.err)
			}
			if got != tt.want {
				t.Fatalf("path = %q, want %q", got, tt.want)
			}
		})
	}

	if got := lib.Missing(); !slices.Equal(got, []string{"overlay:fox"}) {
		t.Fatalf("missing = %v", got)
	}
}

func TestListVideos(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "b.MP4"))
	touch(t, filepath.Join(dir, "a.mov"))
	touch(t, filepath.Join(dir, "notes.txt"))
	touch(t, filepath.Join(dir, "sub", "c.mp4"))

	got, err := ListVideos(dir)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{filepath.Join(dir, "a.mov"), filepath.Join(dir, "b.MP4")}
	if !slices.Equal(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

type fakeS3 struct {
	s3iface.S3API

	mu      sync.Mutex
	objects map[string][]byte
	modTime time.Time
	gets    []string
	fail    map[string]bool
}

func (f *fakeS3) ListObjectsV2PagesWithContext(_ aws.Context, in *s3.ListObjectsV2Input, fn func(*s3.ListObjectsV2Output, bool) bool, _ ...request.Option) error {
	var keys []string
	for k := range f.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	// One object per page to exercise pagination.
	for i, k := range keys {
		page := &s3.ListObjectsV2Output{Contents: []*s3.Object{{
			Key:          aws.String(k),
			Size:         aws.Int64(int64(len(f.objects[k]))),
			LastModified: aws.Time(f.modTime),
		}}}
		if !fn(page, i == len(keys)-1) {
			break
		}
	}
	return nil
}

func (f *fakeS3) GetObjectWithContext(_ aws.Context, in *s3.GetObjectInput, _ ...request.Option) (*s3.GetObjectOutput, error) {
	key := aws.StringValue(in.Key)
	f.mu.Lock()
	f.gets = append(f.gets, key)
	f.mu.Unlock()
	if f.fail[key] {
		return nil, errors.New("access denied")
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(f.objects[key]))}, nil
}

func TestSyncDownloadsAndSkips(t *testing.T) {
	dir := t.TempDir()
	client := &fakeS3{
		objects: map[string][]byte{
			"show/":              nil,
			"show/forest.mp4":    []byte("forest-bytes"),
			"show/chars/fox.mov": []byte("fox"),
			"show/broken.mp4":    []byte("nope"),
		},
		modTime: time.Now().Add(-time.Hour),
		fail:    map[string]bool{"show/broken.mp4": true},
	}

	s, err := NewSyncer(client, S3Config{Bucket: "bucket", Prefix: "show/", Concurrency: 2}, dir)
	if err != nil {
		t.Fatal(err)
	}
	res, err := s.Sync(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Downloaded) != 2 {
		t.Fatalf("downloaded = %v", res.Downloaded)
	}
	if _, ok := res.Failed["show/broken.mp4"]; !ok || len(res.Failed) != 1 {
		t.Fatalf("failed = %v", res.Failed)
	}
	data, err := os.ReadFile(filepath.Join(dir, "chars", "fox.mov"))
	if err != nil || string(data) != "fox" {
		t.Fatalf("fox.mov = %q, %v", data, err)
	}

	// Second run: local copies are newer and the same size.
	res, err = s.Sync(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Downloaded) != 0 || len(res.Skipped) != 2 {
		t.Fatalf("second run downloaded=%v skipped=%v", res.Downloaded, res.Skipped)
	}
}

func TestNewSyncerRequiresBucket(t *testing.T) {
	if _, err := NewSyncer(&fakeS3{}, S3Config{}, t.TempDir()); err == nil {
		t.Fatal("expected error without bucket")
	}
	if _, err := NewS3Client(S3Config{}); err == nil {
		t.Fatal("expected error without region")
	}
}

func TestDetectCodec(t *testing.T) {
	tests := []struct {
		name string
		want CodecFamily
	}{
		{"h264", CodecH264},
		{"h264_videotoolbox", CodecH264},
		{"hevc_vaapi", CodecHEVC},
		{"mpeg2video", CodecMPEG12},
		{"libdav1d", CodecAV1},
		{"rawvideo", CodecUnknown},
		{"av1", CodecAV1},
		{"prores", CodecProRes},
		{"qtrle", CodecQTRLE},
		{"vp9", CodecVP9},
	}
	for _, tt := range tests {
		if got := DetectCodec(tt.name); got != tt.want {
			t.Errorf("DetectCodec(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestAdvise(t *testing.T) {
	ok := MediaInfo{Codec: "h264", Width: 1920, Height: 1080, FPS: 30}
	if hints := Advise(ok, false, 1920, 1080); len(hints) != 0 {
		t.Fatalf("unexpected hints for a well-formed background: %v", hints)
	}

	keyed := MediaInfo{Codec: "h264", Width: 960, Height: 540, FPS: 30}
	hints := Advise(keyed, true, 1920, 1080)
	if len(hints) != 1 || !strings.Contains(hints[0], "luminance mask") {
		t.Fatalf("overlay without alpha: %v", hints)
	}

	heavy := MediaInfo{Codec: "hevc", Width: 3840, Height: 2160, FPS: 120}
	hints = Advise(heavy, false, 1920, 1080)
	if len(hints) != 3 {
		t.Fatalf("expected codec, size and fps hints, got %v", hints)
	}
	if !strings.Contains(hints[1], "scale=1920:1080") {
		t.Errorf("size hint lacks scale filter: %s", hints[1])
	}

	prores := MediaInfo{Codec: "hevc", Width: 3840, Height: 2160, FPS: 30, HasAlpha: true}
	for _, h := range Advise(prores, true, 1920, 1080) {
		if strings.Contains(h, "libx264") {
			t.Errorf("alpha overlay pointed at a codec without alpha: %s", h)
		}
	}

	hw := MediaInfo{Codec: "hevc_videotoolbox", Hardware: true, Width: 1920, Height: 1080, FPS: 30}
	if hints := Advise(hw, false, 1920, 1080); len(hints) != 0 {
		t.Fatalf("hardware HEVC flagged: %v", hints)
	}
}
