// Package call реализует ядро сигнального клиента: жизненный цикл
// многосторонних вызовов.
//
// Основные типы:
//
//   - Endpoint — локальный участник: регистрация (Listen/Unlisten),
//     рассылка приглашений (Invite) с семантикой «хотя бы один успех»,
//     выход из разговоров (Leave) с ожиданием всех завершений.
//   - Conversation — множество активных диалогов одного вызова.
//   - Dialog — одно вызывное плечо: монотонное завершение, реакция на
//     изменения локального потока пересогласованием сессии.
//   - Invite — входящее приглашение до решения Accept/Reject.
//
// Сигнальный транспорт, медиа дорожки, учётные данные и звуковые
// сигналы — внешние коллабораторы (pkg/ua, pkg/media, pkg/token,
// pkg/sound); ядро зависит только от их интерфейсов.
//
// Уведомления жизненного цикла доставляются асинхронно и никогда — в
// том же вызове, который их породил. Уведомления о завершении операций
// удерживаются и доигрываются поздним подписчикам ровно один раз.
package call
