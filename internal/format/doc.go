// Package format formats markup sources.
//
// Назначение: нормализация заголовков, списков и пробелов, перенос абзацев
// по ширине в колонках отображения.
// Не делает: разбора в AST; raw-блоки и комментарии копируются как есть.
// Зависимости: internal/source, go-runewidth.
package format
