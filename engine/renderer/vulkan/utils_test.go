package vulkan

import (
	"errors"
	"io"
	"os"
	"testing"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/framepace/engine/core"
	"github.com/spaghettifunk/framepace/engine/renderer/gpu"
)

func TestMain(m *testing.M) {
	core.SetLogOutput(io.Discard)
	os.Exit(m.Run())
}

func TestToResult(t *testing.T) {
	tests := []struct {
		in   vk.Result
		want gpu.Result
	}{
		{vk.Success, gpu.ResultSuccess},
		{vk.Suboptimal, gpu.ResultSuboptimal},
		{vk.ErrorOutOfDate, gpu.ResultErrorOutOfDate},
		{vk.ErrorOutOfPoolMemory, gpu.ResultErrorOutOfPoolMemory},
		{vk.ErrorFragmentedPool, gpu.ResultErrorFragmentedPool},
		{vk.ErrorDeviceLost, gpu.ResultErrorDeviceLost},
		{vk.ErrorOutOfDeviceMemory, gpu.ResultErrorOutOfMemory},
		{vk.ErrorInitializationFailed, gpu.ResultErrorUnknown},
	}
	for _, tt := range tests {
		if got := toResult(tt.in); got != tt.want {
			t.Errorf("toResult(%s) = %s, want %s", VulkanResultString(tt.in), got, tt.want)
		}
	}
}

func TestCheck(t *testing.T) {
	if err := check("vkQueueSubmit", vk.Success); err != nil {
		t.Errorf("success: %v", err)
	}
	if err := check("vkAcquireNextImageKHR", vk.Suboptimal); err != nil {
		t.Errorf("suboptimal: %v", err)
	}

	err := check("vkQueueSubmit", vk.ErrorDeviceLost)
	if !errors.Is(err, core.ErrDeviceLost) {
		t.Errorf("device lost not matched: %v", err)
	}
	var re *gpu.ResultError
	if !errors.As(err, &re) || re.Op != "vkQueueSubmit" || re.Result != gpu.ResultErrorDeviceLost {
		t.Errorf("result error = %+v", re)
	}

	if err := check("vkCreateImage", vk.ErrorOutOfDeviceMemory); errors.Is(err, core.ErrDeviceLost) {
		t.Errorf("out of memory reported as device loss: %v", err)
	}
}

func TestResultStringFallback(t *testing.T) {
	if got := VulkanResultString(vk.ErrorOutOfDate); got != "VK_ERROR_OUT_OF_DATE_KHR" {
		t.Errorf("name = %q", got)
	}
	if got := VulkanResultString(vk.Result(12345)); got != "VkResult(12345)" {
		t.Errorf("fallback = %q", got)
	}
}

func TestHandleTable(t *testing.T) {
	tbl := newTable[gpu.Fence, string]()
	a := tbl.put("a")
	b := tbl.put("b")
	if a == gpu.NullFence || a == b {
		t.Fatalf("handles %d and %d", a, b)
	}
	if v, ok := tbl.get(b); !ok || v != "b" {
		t.Errorf("get(b) = %q, %v", v, ok)
	}
	if _, ok := tbl.take(a); !ok {
		t.Error("take(a) missed")
	}
	if _, ok := tbl.get(a); ok {
		t.Error("a still present after take")
	}
	// Handles are never reused.
	if c := tbl.put("c"); c == a {
		t.Error("handle reused")
	}
	if tbl.len() != 2 {
		t.Errorf("len = %d", tbl.len())
	}
}

func TestSafeStrings(t *testing.T) {
	in := []string{"VK_KHR_surface", "", "done\x00"}
	out := VulkanSafeStrings(in)
	want := []string{"VK_KHR_surface\x00", "\x00", "done\x00"}
	for i := range want {
		if out[i] != want[i] {
			t.Errorf("out[%d] = %q, want %q", i, out[i], want[i])
		}
	}
	if in[0] != "VK_KHR_surface" {
		t.Error("input slice modified")
	}
}
