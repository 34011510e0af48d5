package mpeg

/*
#cgo pkg-config: libavformat libavcodec libavutil libswscale

#include <stdlib.h>
#include <stdio.h>
#include <string.h>
#include <libavformat/avformat.h>
#include <libavcodec/avcodec.h>
#include <libavutil/imgutils.h>
#include <libavutil/pixdesc.h>
#include <libswscale/swscale.h>
#include <libavutil/log.h>

typedef struct {
    AVFormatContext *formatCtx;
    AVCodecContext  *codecCtx;
    AVFrame         *frame;
    AVFrame         *frameRGBA;
    struct SwsContext *swsCtx;
    int             videoStream;
    int             hasAlpha;
    uint8_t         *bufferRGBA;
} Decoder;

static int try_open_codec(Decoder *d, const AVCodec *candidate, AVCodecParameters *par) {
    AVCodecContext *ctx = avcodec_alloc_context3(candidate);
    if (!ctx) {
        return 0;
    }
    avcodec_parameters_to_context(ctx, par);
    ctx->thread_type = FF_THREAD_FRAME;
    ctx->thread_count = 0;
    if (avcodec_open2(ctx, candidate, NULL) < 0) {
        avcodec_free_context(&ctx);
        return 0;
    }
    d->codecCtx = ctx;
    return 1;
}

// Hardware decoders first, software last. Names missing from the local
// libavcodec build are skipped.
static int open_best_codec(Decoder *d, AVCodecParameters *par) {
    const char *candidates[8];
    int n = 0;

    const char *envDecoder = getenv("VIDEO_DECODER");
    if (envDecoder && envDecoder[0] != '\0') {
        candidates[n++] = envDecoder;
    }

    const char *forceSw = getenv("FORCE_SOFTWARE_DECODER");
    int allowHw = !(forceSw && strcmp(forceSw, "1") == 0);

    switch (par->codec_id) {
    case AV_CODEC_ID_HEVC:
#ifdef __APPLE__
        if (allowHw) candidates[n++] = "hevc_videotoolbox";
#endif
#ifdef __linux__
        if (allowHw) candidates[n++] = "hevc_vaapi";
#endif
        break;
    case AV_CODEC_ID_H264:
#ifdef __APPLE__
        if (allowHw) candidates[n++] = "h264_videotoolbox";
#endif
#ifdef __linux__
        if (allowHw) candidates[n++] = "h264_vaapi";
#endif
        break;
    default:
        break;
    }

    for (int i = 0; i < n; i++) {
        const AVCodec *c = avcodec_find_decoder_by_name(candidates[i]);
        if (!c || c->id != par->codec_id) {
            continue;
        }
        if (try_open_codec(d, c, par)) {
            return 1;
        }
    }

    const AVCodec *fallback = avcodec_find_decoder(par->codec_id);
    if (!fallback) {
        return 0;
    }
    return try_open_codec(d, fallback, par);
}

int init_decoder(const char *filename, Decoder *d) {
    av_log_set_level(AV_LOG_ERROR);
    d->videoStream = -1;

    if (avformat_open_input(&d->formatCtx, filename, NULL, NULL) != 0) {
        return -1;
    }
    if (avformat_find_stream_info(d->formatCtx, NULL) < 0) {
        return -2;
    }

    for (unsigned int i = 0; i < d->formatCtx->nb_streams; i++) {
        if (d->formatCtx->streams[i]->codecpar->codec_type == AVMEDIA_TYPE_VIDEO) {
            d->videoStream = (int)i;
            break;
        }
    }
    if (d->videoStream == -1) {
        return -3;
    }

    AVCodecParameters *par = d->formatCtx->streams[d->videoStream]->codecpar;
    if (!open_best_codec(d, par)) {
        return -4;
    }

    const AVPixFmtDescriptor *desc = av_pix_fmt_desc_get(d->codecCtx->pix_fmt);
    d->hasAlpha = (desc && (desc->flags & AV_PIX_FMT_FLAG_ALPHA)) ? 1 : 0;

    d->frame = av_frame_alloc();
    d->frameRGBA = av_frame_alloc();

    int width  = d->codecCtx->width;
    int height = d->codecCtx->height;
    int numBytes = av_image_get_buffer_size(AV_PIX_FMT_RGBA, width, height, 1);
    d->bufferRGBA = (uint8_t *)av_malloc(numBytes * sizeof(uint8_t));
    av_image_fill_arrays(d->frameRGBA->data, d->frameRGBA->linesize, d->bufferRGBA, AV_PIX_FMT_RGBA, width, height, 1);

    d->swsCtx = sws_getContext(width, height, d->codecCtx->pix_fmt,
                               width, height, AV_PIX_FMT_RGBA,
                               SWS_BILINEAR, NULL, NULL, NULL);
    if (!d->swsCtx) {
        return -5;
    }
    return 0;
}

// Returns 1 on success, 0 on EOF, negative on error.
int decode_frame(Decoder *d, uint8_t **rgba_data) {
    AVPacket *packet = av_packet_alloc();
    int ret;

    while (av_read_frame(d->formatCtx, packet) >= 0) {
        if (packet->stream_index != d->videoStream) {
            av_packet_unref(packet);
            continue;
        }
        ret = avcodec_send_packet(d->codecCtx, packet);
        av_packet_unref(packet);
        if (ret < 0) {
            av_packet_free(&packet);
            return -1;
        }
        ret = avcodec_receive_frame(d->codecCtx, d->frame);
        if (ret == AVERROR(EAGAIN)) {
            continue;
        } else if (ret < 0) {
            av_packet_free(&packet);
            return -2;
        }

        sws_scale(d->swsCtx,
                  (const uint8_t * const*)d->frame->data,
                  d->frame->linesize,
                  0,
                  d->codecCtx->height,
                  d->frameRGBA->data,
                  d->frameRGBA->linesize);

        *rgba_data = d->frameRGBA->data[0];
        av_packet_free(&packet);
        return 1;
    }
    av_packet_free(&packet);
    return 0;
}

int rewind_decoder(Decoder *d) {
    if (av_seek_frame(d->formatCtx, d->videoStream, 0, AVSEEK_FLAG_BACKWARD) < 0) {
        return -1;
    }
    avcodec_flush_buffers(d->codecCtx);
    return 0;
}

void close_decoder(Decoder *d) {
    if (!d) return;
    if (d->swsCtx) {
        sws_freeContext(d->swsCtx);
        d->swsCtx = NULL;
    }
    av_free(d->bufferRGBA);
    d->bufferRGBA = NULL;
    av_frame_free(&d->frameRGBA);
    av_frame_free(&d->frame);
    avcodec_free_context(&d->codecCtx);
    if (d->formatCtx) {
        avformat_close_input(&d->formatCtx);
    }
}

double getDecoderFPS(Decoder *d) {
    if (!d || d->videoStream < 0) {
        return 0;
    }
    AVStream *st = d->formatCtx->streams[d->videoStream];
    AVRational r = av_guess_frame_rate(d->formatCtx, st, NULL);
    if (r.den == 0) {
        return 0;
    }
    return av_q2d(r);
}

const char *decoder_codec_name(Decoder *d) {
    if (!d || !d->codecCtx || !d->codecCtx->codec) {
        return "";
    }
    return d->codecCtx->codec->name;
}
*/
import "C"

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"unsafe"

	"story-stage/pkg/assets"
	"story-stage/pkg/frame"
	"story-stage/pkg/stream"
)

var initErrors = map[int]string{
	-1: "could not open input",
	-2: "could not find stream information",
	-3: "no video stream",
	-4: "no working decoder for codec",
	-5: "could not create colour converter",
}

// Decoder is an FFmpeg decode session producing RGBA frames.
type Decoder struct {
	cdec     C.Decoder
	path     string
	width    int
	height   int
	fps      float64
	hasAlpha bool
	codec    string

	closeOnce sync.Once
}

// Open implements stream.Opener on top of libav.
func Open(path string) (stream.Decoder, error) {
	d, err := NewDecoder(path)
	if err != nil {
		return nil, err
	}
	return d, nil
}

// NewDecoder opens path and prepares RGBA conversion.
func NewDecoder(path string) (*Decoder, error) {
	cPath := C.CString(path)
	defer C.free(unsafe.Pointer(cPath))

	d := &Decoder{path: path}
	if ret := int(C.init_decoder(cPath, &d.cdec)); ret != 0 {
		C.close_decoder(&d.cdec)
		msg, ok := initErrors[ret]
		if !ok {
			msg = "init_decoder failed"
		}
		return nil, fmt.Errorf("%s (code=%d)", msg, ret)
	}

	d.width = int(d.cdec.codecCtx.width)
	d.height = int(d.cdec.codecCtx.height)
	d.hasAlpha = d.cdec.hasAlpha != 0
	d.fps = float64(C.getDecoderFPS(&d.cdec))
	d.codec = C.GoString(C.decoder_codec_name(&d.cdec))
	return d, nil
}

// Probe opens path just long enough to describe it.
func Probe(path string) (assets.MediaInfo, error) {
	d, err := NewDecoder(path)
	if err != nil {
		return assets.MediaInfo{}, err
	}
	defer d.Close()
	return assets.MediaInfo{
		Path:     path,
		Codec:    d.codec,
		Hardware: d.Hardware(),
		Width:    d.width,
		Height:   d.height,
		FPS:      d.fps,
		HasAlpha: d.hasAlpha,
	}, nil
}

// NextFrame decodes one frame, returning io.EOF at end of stream.
func (d *Decoder) NextFrame() (*frame.Frame, error) {
	var data *C.uint8_t
	ret := C.decode_frame(&d.cdec, &data)
	switch {
	case ret == 0:
		return nil, io.EOF
	case ret < 0:
		return nil, fmt.Errorf("decode error (code=%d)", int(ret))
	}

	bufLen := d.width * d.height * 4
	return &frame.Frame{
		Width:    d.width,
		Height:   d.height,
		Pix:      C.GoBytes(unsafe.Pointer(data), C.int(bufLen)),
		HasAlpha: d.hasAlpha,
	}, nil
}

// Rewind seeks back to the first frame.
func (d *Decoder) Rewind() error {
	if ret := C.rewind_decoder(&d.cdec); ret != 0 {
		return fmt.Errorf("seek to start failed (code=%d)", int(ret))
	}
	return nil
}

// FPS returns the guessed frame rate, 0 when unknown.
func (d *Decoder) FPS() float64 {
	return d.fps
}

// Size returns the decoded frame dimensions.
func (d *Decoder) Size() (int, int) {
	return d.width, d.height
}

// HasAlpha reports whether the source pixel format carries alpha.
func (d *Decoder) HasAlpha() bool {
	return d.hasAlpha
}

// Codec returns the libavcodec decoder in use.
func (d *Decoder) Codec() string {
	return d.codec
}

// Hardware reports whether a hardware decoder was selected.
func (d *Decoder) Hardware() bool {
	return strings.HasSuffix(d.codec, "_videotoolbox") || strings.HasSuffix(d.codec, "_vaapi")
}

// Close cleans up resources.
func (d *Decoder) Close() error {
	d.closeOnce.Do(func() {
		C.close_decoder(&d.cdec)
	})
	return nil
}
