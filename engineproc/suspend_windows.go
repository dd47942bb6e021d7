//go:build windows

package engineproc

import (
	"fmt"

	"golang.org/x/sys/windows"
)

const processSuspendResume = 0x0800

var (
	ntdll                = windows.NewLazySystemDLL("ntdll.dll")
	procNtSuspendProcess = ntdll.NewProc("NtSuspendProcess")
	procNtResumeProcess  = ntdll.NewProc("NtResumeProcess")
)

func suspendProcess(pid int) error {
	return callSuspendProc(procNtSuspendProcess, pid)
}

func resumeProcess(pid int) error {
	return callSuspendProc(procNtResumeProcess, pid)
}

func callSuspendProc(proc *windows.LazyProc, pid int) error {
	h, err := windows.OpenProcess(processSuspendResume, false, uint32(pid))
	if err != nil {
		return fmt.Errorf("open process %d: %w", pid, err)
	}
	defer windows.CloseHandle(h)
	if status, _, _ := proc.Call(uintptr(h)); status != 0 {
		return fmt.Errorf("%s: status %#x", proc.Name, status)
	}
	return nil
}
