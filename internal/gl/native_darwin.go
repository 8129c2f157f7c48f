package gl

const systemLibrary = "/System/Library/Frameworks/OpenGL.framework/OpenGL"

// The OpenGL framework exports every core entry point directly.
func platformProcAddress(uintptr) ProcAddressFunc { return nil }
