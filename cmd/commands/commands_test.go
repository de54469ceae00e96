/*
Copyright 2024 The RegionalBankDataPlatform Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package commands

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_Commands(t *testing.T) {

	t.Run("test root", func(t *testing.T) {
		b := bytes.NewBufferString("")
		rootCmd.SetOut(b)
		rootCmd.SetArgs([]string{"help"})
		assert.NotPanics(t, Execute)
		output, _ := io.ReadAll(b)
		assert.Contains(t, string(output), "Available Commands")
	})

	t.Run("Processor", func(t *testing.T) {
		cmd := NewProcessorCommand()
		assert.Equal(t, "processor", cmd.Use)
		assert.True(t, cmd.HasLocalFlags())
		assert.Equal(t, "string", cmd.Flag("config").Value.Type())
	})

	t.Run("Version", func(t *testing.T) {
		cmd := NewVersionCommand()
		assert.Equal(t, "version", cmd.Use)
		assert.NoError(t, cmd.Execute())
	})
}
