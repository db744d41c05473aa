//go:build !(darwin || linux)

package supervisor

import "os/exec"

// killGroupOnCancel keeps exec's default of killing only the direct child.
func killGroupOnCancel(cmd *exec.Cmd) {}
