// Package terminal binds a tcell screen to the engine
//
// The Service owns the tcell.Screen used as the render surface, polls its
// input on a dedicated goroutine and hands translated events to the engine
// loop through ExecuteWithEngine, so every handler still runs on the loop
// goroutine. Ctrl+C requests a soft shutdown, Shift+Esc a hard one.
package terminal
