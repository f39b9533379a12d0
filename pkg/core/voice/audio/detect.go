package audio

import (
	"github.com/gabriel-vasile/mimetype"
)

// recognizable maps detected MIME types to the content types the recognize
// endpoint accepts.
var recognizable = map[string]string{
	"audio/wav":       "audio/wav",
	"audio/flac":      "audio/flac",
	"audio/ogg":       "audio/ogg",
	"application/ogg": "audio/ogg",
	"audio/mpeg":      "audio/mpeg",
	"audio/webm":      "audio/webm",
	"video/webm":      "audio/webm",
	"audio/basic":     "audio/basic",
}

// DetectContentType sniffs the leading bytes of an audio stream.
func DetectContentType(head []byte) (string, bool) {
	return lookup(mimetype.Detect(head))
}

// DetectFileContentType sniffs the content type of the file at path.
func DetectFileContentType(path string) (string, bool, error) {
	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return "", false, err
	}
	ct, ok := lookup(mtype)
	return ct, ok, nil
}

func lookup(mtype *mimetype.MIME) (string, bool) {
	for m := mtype; m != nil; m = m.Parent() {
		for detected, ct := range recognizable {
			if m.Is(detected) {
				return ct, true
			}
		}
	}
	return "", false
}
