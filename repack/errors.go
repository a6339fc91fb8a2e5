package repack

import "errors"

var (
	ErrorNoInnerArchive = errors.New("Container has no ramdisk archive")
	ErrorNoChanges      = errors.New("No fstab lines were changed; refusing to create no-op image")
)
