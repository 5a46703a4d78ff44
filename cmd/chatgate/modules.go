package main

// Compiled-in modules. Each registers itself with core in init.
import (
	_ "github.com/flemzord/chatgate/internal/gateway"
	_ "github.com/flemzord/chatgate/modules/history/file"
	_ "github.com/flemzord/chatgate/modules/history/sqlite"
	_ "github.com/flemzord/chatgate/modules/provider/anthropic"
	_ "github.com/flemzord/chatgate/modules/provider/openai"
)
