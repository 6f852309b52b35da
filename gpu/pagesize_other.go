//go:build !unix

package gpu

func pageSize() int {
	return 4096
}
