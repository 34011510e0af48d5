package assets

import (
	"fmt"
	"strings"
)

// CodecFamily groups decoder names by bitstream format.
type CodecFamily int

const (
	CodecUnknown CodecFamily = iota
	CodecMPEG12
	CodecMPEG4
	CodecH264
	CodecHEVC
	CodecVP8
	CodecVP9
	CodecAV1
	CodecProRes
	CodecQTRLE
)

// DetectCodec maps a libavcodec decoder name to its family.
func DetectCodec(name string) CodecFamily {
	lower := strings.ToLower(name)
	switch {
	case strings.Contains(lower, "h264"), strings.Contains(lower, "avc"):
		return CodecH264
	case strings.Contains(lower, "hevc"), strings.Contains(lower, "h265"):
		return CodecHEVC
	case strings.Contains(lower, "mpeg1"), strings.Contains(lower, "mpeg2"):
		return CodecMPEG12
	case strings.Contains(lower, "mpeg4"):
		return CodecMPEG4
	case strings.Contains(lower, "vp8"):
		return CodecVP8
	case strings.Contains(lower, "vp9"):
		return CodecVP9
	case strings.Contains(lower, "av1"):
		return CodecAV1
	case strings.Contains(lower, "prores"):
		return CodecProRes
	case strings.Contains(lower, "qtrle"):
		return CodecQTRLE
	}
	return CodecUnknown
}

// String returns human-readable codec family name
func (c CodecFamily) String() string {
	switch c {
	case CodecMPEG12:
		return "MPEG-1/2"
	case CodecMPEG4:
		return "MPEG-4"
	case CodecH264:
		return "H.264/AVC"
	case CodecHEVC:
		return "H.265/HEVC"
	case CodecVP8:
		return "VP8"
	case CodecVP9:
		return "VP9"
	case CodecAV1:
		return "AV1"
	case CodecProRes:
		return "ProRes"
	case CodecQTRLE:
		return "QuickTime Animation"
	default:
		return "unknown"
	}
}

// MediaInfo is what a probe learned about one asset.
type MediaInfo struct {
	Path     string
	Codec    string
	Hardware bool
	Width    int
	Height   int
	FPS      float64
	HasAlpha bool
}

// Advise returns operator hints for playing info on a stage of outW x outH.
// Overlays are judged on keying as well as decode cost.
func Advise(info MediaInfo, overlay bool, outW, outH int) []string {
	var hints []string
	family := DetectCodec(info.Codec)

	if overlay && !info.HasAlpha {
		hints = append(hints, "no alpha channel: dark pixels will be keyed out with the luminance mask; "+
			"export ProRes 4444, VP9 with alpha or QuickTime Animation for a clean edge")
	}

	if !info.Hardware {
		switch family {
		case CodecMPEG12, CodecHEVC, CodecAV1:
			hints = append(hints, fmt.Sprintf("%s decodes in software and is CPU heavy: %s",
				family, reencodeCommand(info, overlay, outW, outH)))
		case CodecUnknown:
			hints = append(hints, fmt.Sprintf("unrecognised codec %q", info.Codec))
		}
	}

	if outW > 0 && outH > 0 && (info.Width > outW || info.Height > outH) {
		hints = append(hints, fmt.Sprintf("%dx%d is larger than the %dx%d stage and is scaled every frame: %s",
			info.Width, info.Height, outW, outH, reencodeCommand(info, overlay, outW, outH)))
	}

	if info.FPS > 60 {
		hints = append(hints, fmt.Sprintf("%.0f fps drives the render loop above 60 ticks per second", info.FPS))
	}
	return hints
}

// reencodeCommand suggests an ffmpeg line that keeps alpha for overlays.
func reencodeCommand(info MediaInfo, overlay bool, outW, outH int) string {
	scale := ""
	if outW > 0 && outH > 0 && (info.Width > outW || info.Height > outH) {
		scale = fmt.Sprintf("-vf scale=%d:%d:force_original_aspect_ratio=decrease ", outW, outH)
	}
	if overlay && info.HasAlpha {
		return fmt.Sprintf("ffmpeg -i input.mov %s-c:v prores_ks -profile:v 4444 -pix_fmt yuva444p10le output.mov", scale)
	}
	return fmt.Sprintf("ffmpeg -i input.mp4 %s-c:v libx264 -preset slow -crf 20 -c:a copy output.mp4", scale)
}
