// Package producer разбивает нагрузку на задачи и публикует их.
//
// Порядок публикации одного run'а:
//  1. дескриптор модели (с TTL), ModelCopies копий — по одной на worker
//  2. задачи, каждая со свежим UUID
//
// Задачи независимы: порядок их выполнения не важен.
package producer
