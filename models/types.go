package models

import "time"

// Keypoint indexes the 17 COCO body keypoints in MoveNet output order.
type Keypoint int

const (
	Nose Keypoint = iota
	LeftEye
	RightEye
	LeftEar
	RightEar
	LeftShoulder
	RightShoulder
	LeftElbow
	RightElbow
	LeftWrist
	RightWrist
	LeftHip
	RightHip
	LeftKnee
	RightKnee
	LeftAnkle
	RightAnkle
)

const NumKeypoints = 17

var keypointNames = [NumKeypoints]string{
	"nose", "left_eye", "right_eye", "left_ear", "right_ear",
	"left_shoulder", "right_shoulder", "left_elbow", "right_elbow",
	"left_wrist", "right_wrist", "left_hip", "right_hip",
	"left_knee", "right_knee", "left_ankle", "right_ankle",
}

func (k Keypoint) Valid() bool {
	return k >= 0 && k < NumKeypoints
}

func (k Keypoint) String() string {
	if !k.Valid() {
		return "unknown"
	}
	return keypointNames[k]
}

type KeypointRecord struct {
	X          float32 `json:"x"`
	Y          float32 `json:"y"`
	Confidence float32 `json:"confidence"`
}

type SkeletonConnection struct {
	From Keypoint `json:"from"`
	To   Keypoint `json:"to"`
}

// SkeletonConnections is the canonical 16-bone body skeleton.
var SkeletonConnections = [16]SkeletonConnection{
	// face
	{Nose, LeftEye},
	{Nose, RightEye},
	{LeftEye, LeftEar},
	{RightEye, RightEar},
	// torso
	{LeftShoulder, RightShoulder},
	{LeftShoulder, LeftHip},
	{RightShoulder, RightHip},
	{LeftHip, RightHip},
	// arms
	{LeftShoulder, LeftElbow},
	{LeftElbow, LeftWrist},
	{RightShoulder, RightElbow},
	{RightElbow, RightWrist},
	// legs
	{LeftHip, LeftKnee},
	{LeftKnee, LeftAnkle},
	{RightHip, RightKnee},
	{RightKnee, RightAnkle},
}

// FaceLandmark indexes the six BlazeFace landmarks.
type FaceLandmark int

const (
	RightEyeLandmark FaceLandmark = iota
	LeftEyeLandmark
	NoseTip
	Mouth
	RightEarTragion
	LeftEarTragion
)

const NumFaceLandmarks = 6

var landmarkNames = [NumFaceLandmarks]string{
	"right_eye", "left_eye", "nose", "mouth", "right_ear", "left_ear",
}

func (l FaceLandmark) Valid() bool {
	return l >= 0 && l < NumFaceLandmarks
}

func (l FaceLandmark) String() string {
	if !l.Valid() {
		return "unknown"
	}
	return landmarkNames[l]
}

type Face struct {
	BBox       Rect                    `json:"bbox"`
	Landmarks  [NumFaceLandmarks]Point `json:"landmarks"`
	Confidence float32                 `json:"confidence"`
}

// Anchor is a BlazeFace prior box center in normalized coordinates.
type Anchor struct {
	X, Y float32
	W, H float32
}

type ProcessingTimings struct {
	Acquire    time.Duration
	Preprocess time.Duration
	Inference  time.Duration
	Decode     time.Duration
	Total      time.Duration
}
