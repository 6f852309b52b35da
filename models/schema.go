package models

// TensorInfo describes one model input or output. Unknown dimensions are -1
// until resolved.
type TensorInfo struct {
	Name  string      `json:"name"`
	Shape []int64     `json:"shape"`
	Type  ElementType `json:"type"`
}

type ModelSchema struct {
	Inputs  []TensorInfo `json:"inputs"`
	Outputs []TensorInfo `json:"outputs"`
}

// ResolveDynamic returns a copy of shape with every unknown dimension bound to 1.
func ResolveDynamic(shape []int64) []int64 {
	out := make([]int64, len(shape))
	for i, d := range shape {
		if d < 0 {
			d = 1
		}
		out[i] = d
	}
	return out
}

// Resolved returns a deep copy of the schema with dynamic dimensions bound to 1.
func (s ModelSchema) Resolved() ModelSchema {
	resolve := func(infos []TensorInfo) []TensorInfo {
		out := make([]TensorInfo, len(infos))
		for i, info := range infos {
			out[i] = TensorInfo{Name: info.Name, Shape: ResolveDynamic(info.Shape), Type: info.Type}
		}
		return out
	}
	return ModelSchema{Inputs: resolve(s.Inputs), Outputs: resolve(s.Outputs)}
}
