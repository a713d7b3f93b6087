package gallery

import (
	"strings"

	"github.com/sleuthkit/drawsync/internal/catalog"
)

// Image/video allow-lists. A file qualifies for the index when its
// detected MIME type matches SupportedMIMETypes, or - while detection
// has not run yet - its extension matches SupportedExtensions as the
// degraded signal.

// SupportedMIMETypes lists qualifying MIME types. Entries ending in
// "/*" match the whole top-level type.
var SupportedMIMETypes = []string{
	"image/*",
	"video/*",
	"application/x-shockwave-flash",
}

// SupportedImageExtensions lists image file extensions accepted while
// a file is still unclassified.
var SupportedImageExtensions = []string{
	"bmp", "gif", "jpg", "jpeg", "png", "psd", "tif", "tiff", "tga", "webp",
}

// SupportedVideoExtensions lists video file extensions accepted while
// a file is still unclassified.
var SupportedVideoExtensions = []string{
	"3gp", "avi", "flv", "m4v", "mkv", "mov", "mp4", "mpg", "mpeg", "swf", "webm", "wmv",
}

// SupportedExtensions is the union of the image and video extension
// lists.
var SupportedExtensions = append(
	append([]string{}, SupportedImageExtensions...),
	SupportedVideoExtensions...,
)

// candidateFilter is the enumeration predicate handed to the catalog.
func candidateFilter() catalog.CandidateFilter {
	return catalog.CandidateFilter{
		MIMETypes:  SupportedMIMETypes,
		Extensions: SupportedExtensions,
	}
}

// hasSupportedMIMEType reports whether the MIME type is on the
// allow-list.
func hasSupportedMIMEType(mimeType string) bool {
	for _, pattern := range SupportedMIMETypes {
		if prefix, ok := strings.CutSuffix(pattern, "/*"); ok {
			if strings.HasPrefix(mimeType, prefix+"/") {
				return true
			}
		} else if mimeType == pattern {
			return true
		}
	}
	return false
}

// hasSupportedExtension reports whether the extension is on the
// fallback allow-list.
func hasSupportedExtension(ext string) bool {
	ext = strings.ToLower(ext)
	for _, e := range SupportedExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

// isVideo reports whether the file should be indexed as video rather
// than image, preferring the MIME type over the extension.
func isVideo(f *catalog.FileRef) bool {
	if f.MIMEType != nil {
		return strings.HasPrefix(*f.MIMEType, "video/")
	}
	ext := strings.ToLower(f.Extension)
	for _, e := range SupportedVideoExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

// isDrawable applies the index membership predicate: a regular file
// whose classification (MIME type, or extension while unclassified)
// is recognized as image/video. Known-benign exclusion is handled by
// the caller so removal stays explicit.
func isDrawable(f *catalog.FileRef) bool {
	if f.Kind != catalog.KindRegular {
		return false
	}
	if f.MIMEType != nil {
		return hasSupportedMIMEType(*f.MIMEType)
	}
	return hasSupportedExtension(f.Extension)
}
