// Package vk describes the slice of the Vulkan API that the GPU timing
// instrumentation observes: opaque handles, the flag bits it inspects, result
// codes, and the device entry points it is handed by the host.
//
// Nothing in this package calls a driver. Hosts bind the function types below
// to their own dispatch tables (a layer, a replay consumer, or a software
// device in tests).
package vk

import "fmt"

// Opaque handles. The zero value of every handle is the null handle.
type (
	Device        uintptr
	Queue         uintptr
	CommandPool   uintptr
	CommandBuffer uintptr
	QueryPool     uintptr
)

// NullHandle is the value of an unset handle of any type.
const NullHandle = 0

func (h CommandBuffer) String() string { return fmt.Sprintf("%#x", uintptr(h)) }
func (h CommandPool) String() string   { return fmt.Sprintf("%#x", uintptr(h)) }
func (h Device) String() string        { return fmt.Sprintf("%#x", uintptr(h)) }
func (h Queue) String() string         { return fmt.Sprintf("%#x", uintptr(h)) }
func (h QueryPool) String() string     { return fmt.Sprintf("%#x", uintptr(h)) }

// CommandBufferLevel selects primary or secondary command buffers.
type CommandBufferLevel uint32

const (
	CommandBufferLevelPrimary   CommandBufferLevel = 0
	CommandBufferLevelSecondary CommandBufferLevel = 1
)

// CommandBufferUsageFlags mirrors VkCommandBufferUsageFlags.
type CommandBufferUsageFlags uint32

const (
	CommandBufferUsageOneTimeSubmit      CommandBufferUsageFlags = 0x1
	CommandBufferUsageRenderPassContinue CommandBufferUsageFlags = 0x2
	CommandBufferUsageSimultaneousUse    CommandBufferUsageFlags = 0x4
)

// PipelineStageFlags mirrors VkPipelineStageFlagBits for the two stages that
// timestamps are written at.
type PipelineStageFlags uint32

const (
	PipelineStageTopOfPipe    PipelineStageFlags = 0x1
	PipelineStageBottomOfPipe PipelineStageFlags = 0x2000
)

// QueryType mirrors VkQueryType.
type QueryType uint32

const QueryTypeTimestamp QueryType = 2

// QueryResultFlags mirrors VkQueryResultFlags.
type QueryResultFlags uint32

const (
	QueryResult64Bit            QueryResultFlags = 0x1
	QueryResultWait             QueryResultFlags = 0x2
	QueryResultWithAvailability QueryResultFlags = 0x4
	QueryResultPartial          QueryResultFlags = 0x8
)

// SubpassContents mirrors VkSubpassContents.
type SubpassContents uint32

// Result mirrors VkResult.
type Result int32

const (
	Success                   Result = 0
	NotReady                  Result = 1
	Timeout                   Result = 2
	ErrorOutOfHostMemory      Result = -1
	ErrorOutOfDeviceMemory    Result = -2
	ErrorInitializationFailed Result = -3
	ErrorDeviceLost           Result = -4
)

var resultNames = map[Result]string{
	Success:                   "VK_SUCCESS",
	NotReady:                  "VK_NOT_READY",
	Timeout:                   "VK_TIMEOUT",
	ErrorOutOfHostMemory:      "VK_ERROR_OUT_OF_HOST_MEMORY",
	ErrorOutOfDeviceMemory:    "VK_ERROR_OUT_OF_DEVICE_MEMORY",
	ErrorInitializationFailed: "VK_ERROR_INITIALIZATION_FAILED",
	ErrorDeviceLost:           "VK_ERROR_DEVICE_LOST",
}

func (r Result) String() string {
	if name, ok := resultNames[r]; ok {
		return name
	}
	return fmt.Sprintf("VkResult(%d)", int32(r))
}

// CommandBufferAllocateInfo mirrors VkCommandBufferAllocateInfo.
type CommandBufferAllocateInfo struct {
	CommandPool        CommandPool
	Level              CommandBufferLevel
	CommandBufferCount uint32
}

// SubmitInfo mirrors the part of VkSubmitInfo that names command buffers.
type SubmitInfo struct {
	CommandBuffers []CommandBuffer
}

// DebugUtilsLabel mirrors VkDebugUtilsLabelEXT.
type DebugUtilsLabel struct {
	LabelName string
	Color     [4]float32
}

// RenderPassBeginInfo mirrors VkRenderPassBeginInfo. Only its presence matters
// to the instrumentation.
type RenderPassBeginInfo struct {
	RenderPass  uintptr
	Framebuffer uintptr
}

// SubpassBeginInfo mirrors VkSubpassBeginInfo.
type SubpassBeginInfo struct {
	Contents SubpassContents
}

// SubpassEndInfo mirrors VkSubpassEndInfo.
type SubpassEndInfo struct{}

// QueryPoolCreateInfo mirrors VkQueryPoolCreateInfo.
type QueryPoolCreateInfo struct {
	QueryType  QueryType
	QueryCount uint32
}

// Device entry points supplied by the host.
type (
	CreateQueryPoolFunc     func(device Device, info *QueryPoolCreateInfo) (QueryPool, Result)
	DestroyQueryPoolFunc    func(device Device, pool QueryPool)
	ResetQueryPoolFunc      func(device Device, pool QueryPool, firstQuery, queryCount uint32)
	CmdWriteTimestampFunc   func(cb CommandBuffer, stage PipelineStageFlags, pool QueryPool, query uint32)
	DeviceWaitIdleFunc      func(device Device) Result
	QueueWaitIdleFunc       func(queue Queue) Result
	GetQueryPoolResultsFunc func(device Device, pool QueryPool, firstQuery, queryCount uint32,
		data []uint64, stride uint64, flags QueryResultFlags) Result
)
