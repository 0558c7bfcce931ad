//go:build darwin

package permissions

/*
#cgo LDFLAGS: -framework AVFoundation
#import <AVFoundation/AVFoundation.h>

int microphoneAuthorizationStatus() {
    return (int)[AVCaptureDevice authorizationStatusForMediaType:AVMediaTypeAudio];
}

void requestMicrophoneAccess() {
    [AVCaptureDevice requestAccessForMediaType:AVMediaTypeAudio completionHandler:^(BOOL granted) {}];
}
*/
import "C"

// Microphone returns the current microphone authorization status.
func Microphone() Status {
	return Status(C.microphoneAuthorizationStatus())
}

// RequestMicrophone triggers the system microphone permission dialog.
// The user's answer shows up as a later Microphone() status change.
func RequestMicrophone() {
	C.requestMicrophoneAccess()
}
