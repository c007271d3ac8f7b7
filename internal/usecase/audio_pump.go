package usecase

import (
	"errors"
	"io"
)

// pumpAudioFragments forwards everything the capture device produces to the
// session queue and finishes with exactly one finalize message once the
// stream ends.
func pumpAudioFragments(audio io.Reader, queue chan<- sessionMessage, chunkSize int) {
	if chunkSize < 256 {
		chunkSize = 4096
	}

	buf := make([]byte, chunkSize)
	for {
		n, err := audio.Read(buf)
		if n > 0 {
			fragment := make([]byte, n)
			copy(fragment, buf[:n])
			queue <- sessionMessage{kind: messageFragment, fragment: fragment}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = nil
			}
			queue <- sessionMessage{kind: messageFinalize, err: err}
			return
		}
	}
}
