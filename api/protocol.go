package api

import (
	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
)

const todoBodyMaxSize = 64 * 1024 // 64 KiB

// sonicSerializer encodes echo responses with sonic.
type sonicSerializer struct{}

func (sonicSerializer) Serialize(c echo.Context, i any, indent string) error {
	enc := sonic.ConfigStd.NewEncoder(c.Response())
	if indent != "" {
		enc.SetIndent("", indent)
	}
	return enc.Encode(i)
}

func (sonicSerializer) Deserialize(c echo.Context, i any) error {
	return sonic.ConfigStd.NewDecoder(c.Request().Body).Decode(i)
}
