// ordering/position.go
package ordering

// BasePosition — позиция первого элемента в пустой колонке или бэклоге
const BasePosition float64 = 1

// PositionStep — шаг между позициями при вставке в конец списка.
// Зазор оставляет место для вставок между элементами без перенумерации
const PositionStep float64 = 1

// ComputeInsertPosition вычисляет позицию для вставки нового элемента в конец
// списка с указанными занятыми позициями. Входной срез не обязан быть
// отсортирован: достаточно найти максимум. Существующие позиции никогда
// не перенумеровываются, поэтому повторные вставки в конец не конфликтуют.
func ComputeInsertPosition(positions []float64) float64 {
	if len(positions) == 0 {
		return BasePosition
	}
	max := positions[0]
	for _, p := range positions[1:] {
		if p > max {
			max = p
		}
	}
	return max + PositionStep
}

// ComputeMidpointPosition вычисляет позицию для вставки между двумя соседями.
// Позиции — вещественные числа, поэтому между любыми двумя разными значениями
// найдется середина.
func ComputeMidpointPosition(before, after float64) float64 {
	return (before + after) / 2
}
