// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package dataset

import (
	"fmt"
	"path"
	"strings"
)

// MediaKind classifies a file referenced by (or shipped with) a
// dataset.
type MediaKind string

const (
	KindImage MediaKind = "image"
	KindVideo MediaKind = "video"
	KindAudio MediaKind = "audio"
	// KindAuxiliary is any other file: tokenizer assets, README files,
	// files under the dataset root that no sample references.
	KindAuxiliary MediaKind = "auxiliary"
)

// AllKinds lists every kind in canonical order.
var AllKinds = []MediaKind{KindImage, KindVideo, KindAudio, KindAuxiliary}

// ParseMediaKind accepts a kind name, singular or plural
// ("images" is KindImage).
func ParseMediaKind(name string) (MediaKind, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "image", "images":
		return KindImage, nil
	case "video", "videos":
		return KindVideo, nil
	case "audio", "audios":
		return KindAudio, nil
	case "auxiliary", "aux":
		return KindAuxiliary, nil
	default:
		return "", fmt.Errorf("unknown media kind %q (want image, video, audio or auxiliary)", name)
	}
}

// IsMedia reports whether the kind is an image, video or audio file.
func (kind MediaKind) IsMedia() bool {
	return kind == KindImage || kind == KindVideo || kind == KindAudio
}

// Directory returns the MediaFiles subdirectory used for relocated
// files of this kind.
func (kind MediaKind) Directory() string {
	switch kind {
	case KindImage:
		return "images"
	case KindVideo:
		return "videos"
	case KindAudio:
		return "audios"
	default:
		return "others"
	}
}

// MediaField is a sample field that holds media references.
type MediaField struct {
	Name string
	Kind MediaKind
	// Placeholder is the tag that marks the reference's position in a
	// user turn.
	Placeholder string
}

// MediaFields lists the recognized reference fields in the order
// references are collected from a sample.
var MediaFields = []MediaField{
	{Name: "images", Kind: KindImage, Placeholder: "<image>"},
	{Name: "videos", Kind: KindVideo, Placeholder: "<video>"},
	{Name: "audios", Kind: KindAudio, Placeholder: "<audio>"},
}

// FieldForName returns the media field called name.
func FieldForName(name string) (MediaField, bool) {
	for _, field := range MediaFields {
		if field.Name == name {
			return field, true
		}
	}
	return MediaField{}, false
}

var extensionKinds = map[string]MediaKind{
	".jpg": KindImage, ".jpeg": KindImage, ".png": KindImage, ".gif": KindImage,
	".webp": KindImage, ".bmp": KindImage, ".tif": KindImage, ".tiff": KindImage,

	".mp4": KindVideo, ".m4v": KindVideo, ".mov": KindVideo, ".webm": KindVideo,
	".mkv": KindVideo, ".avi": KindVideo,

	".wav": KindAudio, ".flac": KindAudio, ".ogg": KindAudio, ".oga": KindAudio,
	".opus": KindAudio, ".mp3": KindAudio, ".m4a": KindAudio,
}

// KindForPath guesses a kind from the file extension. Unknown
// extensions are KindAuxiliary.
func KindForPath(name string) MediaKind {
	if kind, ok := extensionKinds[strings.ToLower(path.Ext(name))]; ok {
		return kind
	}
	return KindAuxiliary
}

// IsTextPath reports whether name looks like a text document that
// compresses well (JSON, JSONL, YAML, plain text, CSV).
func IsTextPath(name string) bool {
	switch strings.ToLower(path.Ext(name)) {
	case ".json", ".jsonl", ".yaml", ".yml", ".txt", ".csv", ".tsv", ".md", ".xml", ".html":
		return true
	}
	return false
}
