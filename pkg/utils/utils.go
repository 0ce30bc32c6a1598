package utils

import (
	"fmt"
	"net"
	"net/http"
	"strings"
	"unsafe"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
)

func UniqueID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return strings.ReplaceAll(uuid.NewString(), "-", "")
	}
	return strings.ReplaceAll(id.String(), "-", "")
}

func GetLocalIP() (string, error) {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return "", fmt.Errorf("failed to get interface addresses: %w", err)
	}

	for _, addr := range addrs {
		if ipnet, ok := addr.(*net.IPNet); ok {
			if ipnet.IP.IsLoopback() {
				continue
			}
			if ipnet.IP.To4() != nil {
				return ipnet.IP.String(), nil
			}
		}
	}
	return "", fmt.Errorf("no valid local IP address found")
}

func Marshal(v any) ([]byte, error) {
	return sonic.Marshal(v)
}

// ParseJSONArg decodes a command-line argument as JSON, falling back to the
// raw string when it is not valid JSON.
func ParseJSONArg(arg string) any {
	var v any
	if err := sonic.UnmarshalString(arg, &v); err != nil {
		return arg
	}
	return v
}

// MustToJSON marshals obj, returning "" on failure.
func MustToJSON(obj any) string {
	str, _ := sonic.Marshal(obj)
	return Bytes2Str(str)
}

// Bytes2Str converts byte slice to string without copying.
func Bytes2Str(b []byte) string {
	return *(*string)(unsafe.Pointer(&b))
}

func WriteResp(w http.ResponseWriter, httpStatus int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	data, err := Marshal(body)
	if err != nil {
		return
	}
	_, _ = w.Write(data)
}
