package cmd

import "fmt"

// mustFlag reads a flag through one of the pflag getters, for example
// mustFlag(cmd.Flags().GetInt, "port"). Flags are registered in init, so a
// lookup error is a programming bug and panics.
func mustFlag[T any](get func(name string) (T, error), name string) T {
	val, err := get(name)
	if err != nil {
		panic(fmt.Sprintf("flag error for --%s: %v", name, err))
	}
	return val
}
