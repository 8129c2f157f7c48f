package gl

import "github.com/ebitengine/purego"

const systemLibrary = "libGL.so.1"

// platformProcAddress returns glXGetProcAddressARB when libGL exports it.
func platformProcAddress(lib uintptr) ProcAddressFunc {
	sym, err := purego.Dlsym(lib, "glXGetProcAddressARB")
	if err != nil || sym == 0 {
		return nil
	}
	var getProcAddress func(name string) uintptr
	purego.RegisterFunc(&getProcAddress, sym)
	return getProcAddress
}
