package fsentry

import (
	"fmt"
	"strings"
)

// FileType is the coarse category of a directory entry, derived from its
// extension or directory flag.
type FileType string

const (
	FileTypeImage      FileType = "IMAGE"
	FileTypeVideo      FileType = "VIDEO"
	FileTypeAudio      FileType = "AUDIO"
	FileTypePDF        FileType = "PDF"
	FileTypeDocument   FileType = "DOCUMENT"
	FileTypePowerpoint FileType = "POWERPOINT"
	FileTypeExcel      FileType = "EXCEL"
	FileTypeText       FileType = "TEXT"
	FileTypeFolder     FileType = "FOLDER"
	FileTypeZip        FileType = "ZIP"
	FileTypeUnknown    FileType = "UNKNOWN"
)

var AllFileTypes = []FileType{
	FileTypeImage,
	FileTypeVideo,
	FileTypeAudio,
	FileTypePDF,
	FileTypeDocument,
	FileTypePowerpoint,
	FileTypeExcel,
	FileTypeText,
	FileTypeFolder,
	FileTypeZip,
	FileTypeUnknown,
}

var extFileTypes = map[string]FileType{
	"jpg": FileTypeImage, "jpeg": FileTypeImage, "png": FileTypeImage, "gif": FileTypeImage,
	"bmp": FileTypeImage, "webp": FileTypeImage, "tiff": FileTypeImage, "tif": FileTypeImage,
	"svg": FileTypeImage, "ico": FileTypeImage, "heic": FileTypeImage,

	"mp4": FileTypeVideo, "mkv": FileTypeVideo, "avi": FileTypeVideo, "mov": FileTypeVideo,
	"wmv": FileTypeVideo, "flv": FileTypeVideo, "webm": FileTypeVideo, "3gp": FileTypeVideo,

	"mp3": FileTypeAudio, "wav": FileTypeAudio, "aac": FileTypeAudio, "flac": FileTypeAudio,
	"ogg": FileTypeAudio, "m4a": FileTypeAudio, "mpeg": FileTypeAudio,

	"pdf": FileTypePDF,

	"doc": FileTypeDocument, "docx": FileTypeDocument,

	"xls": FileTypeExcel, "xlsx": FileTypeExcel,

	"ppt": FileTypePowerpoint, "pptx": FileTypePowerpoint,

	"txt": FileTypeText, "csv": FileTypeText, "rtf": FileTypeText, "odt": FileTypeText,

	"zip": FileTypeZip, "rar": FileTypeZip, "7z": FileTypeZip, "tar": FileTypeZip, "gz": FileTypeZip,
}

var fileTypeMimes = map[FileType]string{
	FileTypeImage:      "image/*",
	FileTypeVideo:      "video/*",
	FileTypeAudio:      "audio/*",
	FileTypePDF:        "application/pdf",
	FileTypeDocument:   "application/msword",
	FileTypePowerpoint: "application/vnd.ms-powerpoint",
	FileTypeExcel:      "application/vnd.ms-excel",
	FileTypeText:       "text/plain",
	FileTypeFolder:     "",
	FileTypeZip:        "application/zip",
	FileTypeUnknown:    "*/*",
}

// FileTypeOf maps a directory flag and a file extension (with or without the
// leading dot) to a FileType. Directories are always FileTypeFolder.
func FileTypeOf(isDirectory bool, ext string) FileType {
	if isDirectory {
		return FileTypeFolder
	}

	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	if ft, ok := extFileTypes[ext]; ok {
		return ft
	}
	return FileTypeUnknown
}

// Mime returns the advisory mime string for the file type.
func (ft FileType) Mime() string {
	if m, ok := fileTypeMimes[ft]; ok {
		return m
	}
	return fileTypeMimes[FileTypeUnknown]
}

func (ft FileType) IsValid() bool {
	_, ok := fileTypeMimes[ft]
	return ok
}

// ParseFileType parses a case-insensitive file type tag such as "image" or "PDF".
func ParseFileType(s string) (FileType, error) {
	ft := FileType(strings.ToUpper(strings.TrimSpace(s)))
	if !ft.IsValid() {
		return "", fmt.Errorf("invalid file type: %q", s)
	}
	return ft, nil
}
