package main

import "fmt"

const (
	MsgNoFace = "No face was detected. Make sure the face is well lit and faces the camera."

	MsgSingleFace = "One face detected."

	MsgNoPose = "No body pose was detected. At least five keypoints must be visible."

	MsgPose = "Body pose detected."
)

func faceMessage(faceCount int) string {
	switch {
	case faceCount == 0:
		return MsgNoFace
	case faceCount == 1:
		return MsgSingleFace
	default:
		return fmt.Sprintf("%d faces detected.", faceCount)
	}
}

func poseMessage(detected bool) string {
	if detected {
		return MsgPose
	}
	return MsgNoPose
}
